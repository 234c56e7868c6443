package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harvestpay/core/claimable"
	"harvestpay/core/fault"
	"harvestpay/core/inspect"
	"harvestpay/core/multisig"
	"harvestpay/core/settlement"
	"harvestpay/ledger"
)

const (
	testAPIKey    = "partner-1"
	testAPISecret = "super-secret"
)

type stubCore struct {
	createFn  func(ctx context.Context, req settlement.EscrowRequest) (*settlement.EscrowReceipt, error)
	releaseFn func(ctx context.Context, req settlement.ReleaseRequest) (*settlement.ClaimReceipt, error)
	refundFn  func(ctx context.Context, req settlement.RefundRequest) (*settlement.ClaimReceipt, error)
	setupFn   func(ctx context.Context, req multisig.SetupRequest) (*multisig.SetupReceipt, error)
	accountFn func(ctx context.Context, publicKey string) (*ledger.AccountSnapshot, error)
	feeFn     func(ctx context.Context, operationCount int) (*inspect.FeeEstimate, error)
	listFn    func(ctx context.Context, publicKey string) ([]claimable.Balance, error)
	txFn      func(ctx context.Context, hash string) (*ledger.TransactionOutcome, error)
}

func (s *stubCore) CreateEscrow(ctx context.Context, req settlement.EscrowRequest) (*settlement.EscrowReceipt, error) {
	return s.createFn(ctx, req)
}

func (s *stubCore) ReleasePayment(ctx context.Context, req settlement.ReleaseRequest) (*settlement.ClaimReceipt, error) {
	return s.releaseFn(ctx, req)
}

func (s *stubCore) RefundEscrow(ctx context.Context, req settlement.RefundRequest) (*settlement.ClaimReceipt, error) {
	return s.refundFn(ctx, req)
}

func (s *stubCore) SetupAccount(ctx context.Context, req multisig.SetupRequest) (*multisig.SetupReceipt, error) {
	return s.setupFn(ctx, req)
}

func (s *stubCore) AccountInfo(ctx context.Context, publicKey string) (*ledger.AccountSnapshot, error) {
	return s.accountFn(ctx, publicKey)
}

func (s *stubCore) EstimateFee(ctx context.Context, operationCount int) (*inspect.FeeEstimate, error) {
	return s.feeFn(ctx, operationCount)
}

func (s *stubCore) ClaimableBalances(ctx context.Context, publicKey string) ([]claimable.Balance, error) {
	return s.listFn(ctx, publicKey)
}

func (s *stubCore) TransactionStatus(ctx context.Context, hash string) (*ledger.TransactionOutcome, error) {
	return s.txFn(ctx, hash)
}

func newTestServer(t *testing.T, core *stubCore) (*httptest.Server, func() time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0).UTC()
	nowFn := func() time.Time { return now }
	auth := NewAuthenticator([]APIKeyConfig{{Key: testAPIKey, Secret: testAPISecret}}, 2*time.Minute, 4*time.Minute, nowFn)
	server := NewServer(auth, core, core, core, nil)
	server.nowFn = nowFn
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts, nowFn
}

var nonceCounter int

func signedRequest(t *testing.T, nowFn func() time.Time, method, url, path string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url+path, bytes.NewReader(body))
	require.NoError(t, err)
	nonceCounter++
	nonce := fmt.Sprintf("nonce-%d", nonceCounter)
	timestamp := strconv.FormatInt(nowFn().Unix(), 10)
	sig := computeSignature(testAPISecret, timestamp, nonce, method, path, body)
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerSignature, hex.EncodeToString(sig))
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestCreateEscrowEndToEnd(t *testing.T) {
	var captured settlement.EscrowRequest
	core := &stubCore{
		createFn: func(_ context.Context, req settlement.EscrowRequest) (*settlement.EscrowReceipt, error) {
			captured = req
			return &settlement.EscrowReceipt{
				BalanceID:       "balance-1",
				TransactionHash: "0xabc",
				Amount:          req.Amount,
				AssetCode:       claimable.NativeAssetCode,
				FarmerPublicKey: req.FarmerPublicKey,
				BuyerPublicKey:  req.BuyerPublicKey,
			}, nil
		},
	}
	ts, nowFn := newTestServer(t, core)

	body, err := json.Marshal(settlement.EscrowRequest{
		FarmerPublicKey: "hp1farmer",
		BuyerPublicKey:  "hp1buyer",
		Amount:          "120.50",
		DeadlineUnix:    nowFn().Add(time.Hour).Unix(),
		OrderID:         "order-77",
	})
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(signedRequest(t, nowFn, http.MethodPost, ts.URL, "/v1/escrows", body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(headerRequestID))

	var receipt settlement.EscrowReceipt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&receipt))
	require.Equal(t, "balance-1", receipt.BalanceID)
	require.Equal(t, "order-77", captured.OrderID)
}

func TestRejectsUnauthenticatedRequests(t *testing.T) {
	core := &stubCore{
		createFn: func(context.Context, settlement.EscrowRequest) (*settlement.EscrowReceipt, error) {
			t.Fatal("handler must not run without authentication")
			return nil, nil
		},
	}
	ts, nowFn := newTestServer(t, core)

	// No auth headers at all.
	resp, err := http.Post(ts.URL+"/v1/escrows", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Tampered body breaks the signature.
	req := signedRequest(t, nowFn, http.MethodPost, ts.URL, "/v1/escrows", []byte(`{"orderId":"a"}`))
	req.Body = http.NoBody
	req.ContentLength = 0
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNonceReplayRejected(t *testing.T) {
	core := &stubCore{
		accountFn: func(context.Context, string) (*ledger.AccountSnapshot, error) {
			return &ledger.AccountSnapshot{Address: "hp1farmer"}, nil
		},
	}
	ts, nowFn := newTestServer(t, core)

	req := signedRequest(t, nowFn, http.MethodGet, ts.URL, "/v1/accounts/hp1farmer", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	replay, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/accounts/hp1farmer", nil)
	require.NoError(t, err)
	replay.Header = req.Header.Clone()
	resp, err = http.DefaultClient.Do(replay)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFaultKindStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"validation", fault.Validationf("balanceId", "must not be empty"), http.StatusBadRequest, "validation"},
		{"not found", fault.NotFound("claimable balance", "balance-9"), http.StatusNotFound, "not_found"},
		{"conflict", fault.Conflict("claimable balance", "balance-9"), http.StatusConflict, "conflict"},
		{"predicate", fault.PredicateUnsatisfied("claimable balance", "balance-9"), http.StatusUnprocessableEntity, "predicate_unsatisfied"},
		{"submission", fault.Submission(ledger.ResultBadSequence, errors.New("seq")), http.StatusBadGateway, "submission"},
		{"query", fault.Queryf("fetch account"), http.StatusServiceUnavailable, "query"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core := &stubCore{
				releaseFn: func(context.Context, settlement.ReleaseRequest) (*settlement.ClaimReceipt, error) {
					return nil, tc.err
				},
			}
			ts, nowFn := newTestServer(t, core)

			resp, err := http.DefaultClient.Do(signedRequest(t, nowFn, http.MethodPost, ts.URL, "/v1/escrows/release", []byte(`{}`)))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tc.wantStatus, resp.StatusCode)

			var payload map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			require.Equal(t, tc.wantKind, payload["kind"])
			require.NotEmpty(t, payload["requestId"])
		})
	}
}

func TestSubmissionFaultCarriesResultCode(t *testing.T) {
	core := &stubCore{
		refundFn: func(context.Context, settlement.RefundRequest) (*settlement.ClaimReceipt, error) {
			return nil, fault.Submission(ledger.ResultInsufficientFee, errors.New("fee below minimum"))
		},
	}
	ts, nowFn := newTestServer(t, core)

	resp, err := http.DefaultClient.Do(signedRequest(t, nowFn, http.MethodPost, ts.URL, "/v1/escrows/refund", []byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, ledger.ResultInsufficientFee, payload["resultCode"])
}

func TestReadEndpoints(t *testing.T) {
	core := &stubCore{
		feeFn: func(_ context.Context, operationCount int) (*inspect.FeeEstimate, error) {
			return &inspect.FeeEstimate{
				BaseFee:           100,
				FeePerOperation:   100,
				OperationCount:    operationCount,
				EstimatedTotalFee: 100 * uint64(operationCount),
				CurrentNetworkFee: 100,
			}, nil
		},
		listFn: func(_ context.Context, publicKey string) ([]claimable.Balance, error) {
			return []claimable.Balance{{ID: "balance-1"}, {ID: "balance-2"}}, nil
		},
		txFn: func(_ context.Context, hash string) (*ledger.TransactionOutcome, error) {
			return &ledger.TransactionOutcome{Status: ledger.TxStatusSuccess, Hash: hash, Ledger: 42, ResultCode: ledger.ResultOK}, nil
		},
	}
	ts, nowFn := newTestServer(t, core)

	resp, err := http.DefaultClient.Do(signedRequest(t, nowFn, http.MethodGet, ts.URL, "/v1/fees?operations=3", nil))
	require.NoError(t, err)
	var fee inspect.FeeEstimate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fee))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, uint64(300), fee.EstimatedTotalFee)

	resp, err = http.DefaultClient.Do(signedRequest(t, nowFn, http.MethodGet, ts.URL, "/v1/accounts/hp1farmer/claimable-balances", nil))
	require.NoError(t, err)
	var listing struct {
		Balances []claimable.Balance `json:"balances"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	require.Len(t, listing.Balances, 2)
	require.Equal(t, "balance-1", listing.Balances[0].ID)

	resp, err = http.DefaultClient.Do(signedRequest(t, nowFn, http.MethodGet, ts.URL, "/v1/transactions/0xdeadbeef", nil))
	require.NoError(t, err)
	var outcome ledger.TransactionOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	resp.Body.Close()
	require.Equal(t, ledger.TxStatusSuccess, outcome.Status)
	require.Equal(t, "0xdeadbeef", outcome.Hash)
}

func TestHealthzIsOpen(t *testing.T) {
	ts, _ := newTestServer(t, &stubCore{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
