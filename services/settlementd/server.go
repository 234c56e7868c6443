package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"harvestpay/core/claimable"
	"harvestpay/core/fault"
	"harvestpay/core/inspect"
	"harvestpay/core/multisig"
	"harvestpay/core/settlement"
	"harvestpay/ledger"
	"harvestpay/observability"
	"harvestpay/observability/logging"
)

const headerRequestID = "X-Request-Id"

type escrowEngine interface {
	CreateEscrow(ctx context.Context, req settlement.EscrowRequest) (*settlement.EscrowReceipt, error)
	ReleasePayment(ctx context.Context, req settlement.ReleaseRequest) (*settlement.ClaimReceipt, error)
	RefundEscrow(ctx context.Context, req settlement.RefundRequest) (*settlement.ClaimReceipt, error)
}

type accountProvisioner interface {
	SetupAccount(ctx context.Context, req multisig.SetupRequest) (*multisig.SetupReceipt, error)
}

type ledgerInspector interface {
	AccountInfo(ctx context.Context, publicKey string) (*ledger.AccountSnapshot, error)
	EstimateFee(ctx context.Context, operationCount int) (*inspect.FeeEstimate, error)
	ClaimableBalances(ctx context.Context, publicKey string) ([]claimable.Balance, error)
	TransactionStatus(ctx context.Context, hash string) (*ledger.TransactionOutcome, error)
}

// Server is the HTTP front-end for the settlement core. Every mutating and
// read endpoint requires an authenticated API client; /healthz and /metrics
// stay open for probes and scrapers.
type Server struct {
	authenticator *Authenticator
	engine        escrowEngine
	provisioner   accountProvisioner
	inspector     ledgerInspector
	metrics       *observability.SettlementMetrics
	log           *slog.Logger
	router        chi.Router
	nowFn         func() time.Time
}

func NewServer(auth *Authenticator, engine escrowEngine, provisioner accountProvisioner, inspector ledgerInspector, log *slog.Logger) *Server {
	if auth == nil {
		panic("authenticator required")
	}
	if engine == nil {
		panic("settlement engine required")
	}
	if provisioner == nil {
		panic("multisig provisioner required")
	}
	if inspector == nil {
		panic("ledger inspector required")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		authenticator: auth,
		engine:        engine,
		provisioner:   provisioner,
		inspector:     inspector,
		metrics:       observability.Settlement(),
		log:           log,
		nowFn:         time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/escrows", s.handle("create_escrow", s.handleCreateEscrow))
		v1.Post("/escrows/release", s.handle("release_payment", s.handleRelease))
		v1.Post("/escrows/refund", s.handle("refund_escrow", s.handleRefund))
		v1.Post("/multisig/accounts", s.handle("setup_multisig", s.handleSetupMultiSig))
		v1.Get("/accounts/{publicKey}", s.handle("account_info", s.handleAccountInfo))
		v1.Get("/accounts/{publicKey}/claimable-balances", s.handle("claimable_balances", s.handleClaimableBalances))
		v1.Get("/fees", s.handle("estimate_fee", s.handleEstimateFee))
		v1.Get("/transactions/{hash}", s.handle("transaction_status", s.handleTransactionStatus))
	})
	return r
}

type handlerFunc func(r *http.Request, body []byte) (interface{}, error)

// handle wraps an endpoint with body limits, HMAC authentication, fault
// mapping and metrics. The signature covers the raw body, so the body is
// read before any decoding happens.
func (s *Server) handle(operation string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := s.nowFn()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyForSignature+1))
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
			s.metrics.ObserveRequest(operation, "error", s.nowFn().Sub(started))
			return
		}
		principal, err := s.authenticator.Authenticate(r, body)
		if err != nil {
			s.log.Warn("authentication failed",
				slog.String("operation", operation),
				slog.String("requestId", requestIDFrom(r)),
				logging.MaskField("apiKey", r.Header.Get(headerAPIKey)),
				logging.MaskField("signature", r.Header.Get(headerSignature)),
			)
			s.writeError(w, r, http.StatusUnauthorized, err)
			s.metrics.ObserveRequest(operation, "unauthorized", s.nowFn().Sub(started))
			return
		}

		result, err := fn(r, body)
		if err != nil {
			s.writeFault(w, r, operation, principal, err)
			s.metrics.ObserveRequest(operation, "error", s.nowFn().Sub(started))
			return
		}
		s.writeJSON(w, http.StatusOK, result)
		s.metrics.ObserveRequest(operation, "ok", s.nowFn().Sub(started))
		s.log.Info("request served",
			slog.String("operation", operation),
			slog.String("apiKey", principal.APIKey),
			slog.String("requestId", requestIDFrom(r)),
		)
	}
}

func (s *Server) handleCreateEscrow(r *http.Request, body []byte) (interface{}, error) {
	var req settlement.EscrowRequest
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	return s.engine.CreateEscrow(r.Context(), req)
}

func (s *Server) handleRelease(r *http.Request, body []byte) (interface{}, error) {
	var req settlement.ReleaseRequest
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	return s.engine.ReleasePayment(r.Context(), req)
}

func (s *Server) handleRefund(r *http.Request, body []byte) (interface{}, error) {
	var req settlement.RefundRequest
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	return s.engine.RefundEscrow(r.Context(), req)
}

func (s *Server) handleSetupMultiSig(r *http.Request, body []byte) (interface{}, error) {
	var req multisig.SetupRequest
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	return s.provisioner.SetupAccount(r.Context(), req)
}

func (s *Server) handleAccountInfo(r *http.Request, _ []byte) (interface{}, error) {
	return s.inspector.AccountInfo(r.Context(), chi.URLParam(r, "publicKey"))
}

func (s *Server) handleClaimableBalances(r *http.Request, _ []byte) (interface{}, error) {
	balances, err := s.inspector.ClaimableBalances(r.Context(), chi.URLParam(r, "publicKey"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"balances": balances}, nil
}

func (s *Server) handleEstimateFee(r *http.Request, _ []byte) (interface{}, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("operations"))
	if raw == "" {
		raw = "1"
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fault.Validationf("operations", "not a number: %q", raw)
	}
	return s.inspector.EstimateFee(r.Context(), count)
}

func (s *Server) handleTransactionStatus(r *http.Request, _ []byte) (interface{}, error) {
	return s.inspector.TransactionStatus(r.Context(), chi.URLParam(r, "hash"))
}

func decodeJSON(body []byte, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fault.Validationf("body", "invalid JSON payload").Wrap(err)
	}
	return nil
}

// writeFault translates the core error taxonomy to HTTP status codes. The
// mapping relies on the fault kind only, never on message matching.
func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, operation string, principal *Principal, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.metrics.ObserveFault(operation, fe.Kind.String())

	status := http.StatusInternalServerError
	switch fe.Kind {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindConflict:
		status = http.StatusConflict
	case fault.KindPredicateUnsatisfied:
		status = http.StatusUnprocessableEntity
	case fault.KindSubmission:
		status = http.StatusBadGateway
	case fault.KindQuery:
		status = http.StatusServiceUnavailable
	}

	payload := map[string]string{
		"error":     fe.Error(),
		"kind":      fe.Kind.String(),
		"requestId": requestIDFrom(r),
	}
	if fe.ResultCode != "" {
		payload["resultCode"] = fe.ResultCode
	}
	s.writeJSON(w, status, payload)

	s.log.Warn("request failed",
		slog.String("operation", operation),
		slog.String("apiKey", principal.APIKey),
		slog.String("requestId", requestIDFrom(r)),
		slog.String("kind", fe.Kind.String()),
		slog.Int("status", status),
	)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, status, map[string]string{
		"error":     err.Error(),
		"requestId": requestIDFrom(r),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", slog.String("error", err.Error()))
	}
}

type requestIDKey struct{}

// requestID assigns each request a UUID, honouring one supplied by an
// upstream proxy, and echoes it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
