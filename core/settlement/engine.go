// Package settlement orchestrates escrow creation, release and refund over
// the external ledger's claimable balances. The engine holds no mutable
// state between calls; the ledger's atomic single-claim rule is the only
// authority for who gets the funds.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"harvestpay/core/claimable"
	"harvestpay/core/fault"
	"harvestpay/crypto"
	"harvestpay/ledger"
)

// Config carries the immutable platform identity injected at construction.
type Config struct {
	// NetworkName scopes every signature to one ledger network.
	NetworkName string
	// PlatformKey signs escrow creation transactions and sponsors the
	// claimable balances. It may be nil for claim-only engines: release
	// and refund sign with the claiming party's key, never the platform's.
	PlatformKey *crypto.PrivateKey
}

// Engine implements the escrow settlement operations.
type Engine struct {
	cfg      Config
	platform crypto.Address
	gateway  ledger.Gateway
	log      *slog.Logger
	nowFn    func() int64
}

// NewEngine validates the configuration and wires the engine to a ledger
// gateway.
func NewEngine(cfg Config, gateway ledger.Gateway, log *slog.Logger) (*Engine, error) {
	if cfg.NetworkName == "" {
		return nil, errors.New("settlement: network name not configured")
	}
	if gateway == nil {
		return nil, errors.New("settlement: ledger gateway not configured")
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:     cfg,
		gateway: gateway,
		log:     log,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
	if cfg.PlatformKey != nil {
		e.platform = cfg.PlatformKey.Address()
	}
	return e, nil
}

// SetNowFunc overrides the time source used for deadline validation.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

// CreateEscrow locks the requested amount into a new claimable balance with
// two claimants: the farmer claimable at or before the deadline, the buyer
// strictly after it. All validation happens before the first network call.
func (e *Engine) CreateEscrow(ctx context.Context, req EscrowRequest) (*EscrowReceipt, error) {
	if e.cfg.PlatformKey == nil {
		return nil, errors.New("settlement: platform key not configured")
	}
	farmer, err := crypto.DecodeAddress(req.FarmerPublicKey)
	if err != nil {
		return nil, fault.Validationf("farmerPublicKey", "not a valid ledger address").Wrap(err)
	}
	buyer, err := crypto.DecodeAddress(req.BuyerPublicKey)
	if err != nil {
		return nil, fault.Validationf("buyerPublicKey", "not a valid ledger address").Wrap(err)
	}
	if farmer.Equal(buyer) {
		return nil, fault.Validationf("buyerPublicKey", "must differ from farmerPublicKey")
	}
	units, err := claimable.ParseAmount(req.Amount)
	if err != nil {
		return nil, fault.Validationf("amount", "must be a positive decimal within %d decimal places", claimable.AmountDecimals).Wrap(err)
	}
	asset, err := claimable.Asset{Code: req.AssetCode, Issuer: req.AssetIssuer}.Normalize()
	if err != nil {
		return nil, fault.Validationf("assetCode", "unsupported asset").Wrap(err)
	}
	if asset.Issuer != "" {
		if _, err := crypto.DecodeAddress(asset.Issuer); err != nil {
			return nil, fault.Validationf("assetIssuer", "not a valid ledger address").Wrap(err)
		}
	}
	if req.DeadlineUnix <= e.now() {
		return nil, fault.Validationf("deadlineUnixTimestamp", "must be strictly in the future")
	}
	if req.OrderID == "" {
		return nil, fault.Validationf("orderId", "must not be empty")
	}

	farmerPred, buyerPred, err := claimable.BuildEscrowPredicates(req.DeadlineUnix)
	if err != nil {
		return nil, err
	}

	account, err := e.fetchAccount(ctx, e.platform.String())
	if err != nil {
		return nil, err
	}
	fees, err := e.fetchFeeStats(ctx)
	if err != nil {
		return nil, err
	}

	amount := claimable.FormatAmount(units)
	tx := &ledger.Transaction{
		SourceAccount: e.platform.String(),
		Sequence:      account.Sequence + 1,
		Fee:           fees.BaseFee,
		Memo:          req.OrderID,
		Operations: []ledger.Operation{
			ledger.CreateClaimableBalanceOp(asset, amount, []claimable.Claimant{
				{Address: farmer.String(), Predicate: farmerPred},
				{Address: buyer.String(), Predicate: buyerPred},
			}),
		},
	}
	env, err := tx.Sign(e.cfg.NetworkName, e.cfg.PlatformKey)
	if err != nil {
		return nil, fault.Submissionf("build escrow transaction: %v", err)
	}

	result, err := e.submit(ctx, env, "claimable balance", "")
	if err != nil {
		return nil, err
	}
	if len(result.CreatedBalanceIDs) == 0 {
		return nil, fault.Submissionf("ledger confirmed transaction %s without a balance id", result.Hash)
	}

	e.log.Info("escrow created",
		"orderId", req.OrderID,
		"balanceId", result.CreatedBalanceIDs[0],
		"txHash", result.Hash,
		"asset", asset.String(),
		"amount", amount,
	)
	return &EscrowReceipt{
		BalanceID:       result.CreatedBalanceIDs[0],
		TransactionHash: result.Hash,
		Amount:          amount,
		AssetCode:       asset.Code,
		FarmerPublicKey: farmer.String(),
		BuyerPublicKey:  buyer.String(),
	}, nil
}

// ReleasePayment claims the balance for the farmer. The ledger accepts the
// claim only at or before the deadline; afterwards it reports the predicate
// as unsatisfied and the refund path takes over.
func (e *Engine) ReleasePayment(ctx context.Context, req ReleaseRequest) (*ClaimReceipt, error) {
	return e.claim(ctx, claimSpec{
		balanceID:   req.BalanceID,
		publicKey:   req.FarmerPublicKey,
		secretKey:   req.FarmerSecretKey,
		publicField: "farmerPublicKey",
		secretField: "farmerSecretKey",
	})
}

// RefundEscrow claims the balance back for the buyer, which the ledger
// accepts only strictly after the deadline.
func (e *Engine) RefundEscrow(ctx context.Context, req RefundRequest) (*ClaimReceipt, error) {
	return e.claim(ctx, claimSpec{
		balanceID:   req.BalanceID,
		publicKey:   req.BuyerPublicKey,
		secretKey:   req.BuyerSecretKey,
		publicField: "buyerPublicKey",
		secretField: "buyerSecretKey",
	})
}

type claimSpec struct {
	balanceID   string
	publicKey   string
	secretKey   string
	publicField string
	secretField string
}

func (e *Engine) claim(ctx context.Context, spec claimSpec) (*ClaimReceipt, error) {
	claimant, err := crypto.DecodeAddress(spec.publicKey)
	if err != nil {
		return nil, fault.Validationf(spec.publicField, "not a valid ledger address").Wrap(err)
	}
	if spec.balanceID == "" {
		return nil, fault.Validationf("balanceId", "must not be empty")
	}
	key, err := crypto.ParsePrivateKey(spec.secretKey)
	if err != nil {
		return nil, fault.Validationf(spec.secretField, "not a valid secret key").Wrap(err)
	}
	// Key possession is proven by derivation, not by comparing strings the
	// caller could have copied alongside each other.
	if !key.Address().Equal(claimant) {
		return nil, fault.Validationf(spec.secretField, "does not control %s", spec.publicField)
	}

	// Locate the balance just before building the claim so a transaction
	// doomed to fail is never submitted. The ledger stays authoritative for
	// the race between this check and the claim landing.
	balances, err := e.gateway.GetClaimableBalances(ctx, claimant.String())
	if err != nil {
		return nil, fault.Queryf("list claimable balances for %s", claimant.String()).Wrap(err)
	}
	var target *claimable.Balance
	for i := range balances {
		if balances[i].ID == spec.balanceID {
			target = &balances[i]
			break
		}
	}
	if target == nil {
		return nil, fault.NotFound("claimable balance", spec.balanceID)
	}
	if target.Status == claimable.StatusClaimed {
		return nil, fault.Conflict("claimable balance", spec.balanceID)
	}

	account, err := e.fetchAccount(ctx, claimant.String())
	if err != nil {
		return nil, err
	}
	fees, err := e.fetchFeeStats(ctx)
	if err != nil {
		return nil, err
	}

	tx := &ledger.Transaction{
		SourceAccount: claimant.String(),
		Sequence:      account.Sequence + 1,
		Fee:           fees.BaseFee,
		Operations:    []ledger.Operation{ledger.ClaimClaimableBalanceOp(spec.balanceID)},
	}
	env, err := tx.Sign(e.cfg.NetworkName, key)
	if err != nil {
		return nil, fault.Submissionf("build claim transaction: %v", err)
	}

	result, err := e.submit(ctx, env, "claimable balance", spec.balanceID)
	if err != nil {
		return nil, err
	}

	e.log.Info("escrow claimed",
		"balanceId", spec.balanceID,
		"claimant", claimant.String(),
		"txHash", result.Hash,
	)
	return &ClaimReceipt{Status: ledger.TxStatusSuccess, TransactionHash: result.Hash}, nil
}

// submit sends the envelope and classifies the outcome. A transport failure
// leaves the submission pending or unknown: the caller must re-query by
// hash, never resubmit blindly.
func (e *Engine) submit(ctx context.Context, env *ledger.SignedEnvelope, resource, ref string) (*ledger.SubmitResult, error) {
	result, err := e.gateway.SubmitTransaction(ctx, env)
	if err != nil {
		return nil, fault.Submissionf("submission outcome pending or unknown, re-query transaction %s", env.Hash()).Wrap(err)
	}
	if result.OK() {
		return result, nil
	}
	if ref == "" {
		ref = result.Hash
	}
	switch result.ResultCode {
	case ledger.ResultAlreadyClaimed:
		return nil, fault.Conflict(resource, ref)
	case ledger.ResultPredicateUnsatisfied:
		return nil, fault.PredicateUnsatisfied(resource, ref)
	case ledger.ResultNoEntry:
		return nil, fault.NotFound(resource, ref)
	default:
		return nil, fault.Submission(result.ResultCode, fmt.Errorf("transaction %s rejected", result.Hash))
	}
}

func (e *Engine) fetchAccount(ctx context.Context, address string) (*ledger.AccountSnapshot, error) {
	account, err := e.gateway.GetAccount(ctx, address)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fault.NotFound("account", address)
		}
		return nil, fault.Queryf("fetch account %s", address).Wrap(err)
	}
	return account, nil
}

func (e *Engine) fetchFeeStats(ctx context.Context) (*ledger.FeeStats, error) {
	fees, err := e.gateway.GetFeeStats(ctx)
	if err != nil {
		return nil, fault.Queryf("fetch network fee stats").Wrap(err)
	}
	if fees.BaseFee == 0 {
		return nil, fault.Queryf("ledger reported a zero base fee")
	}
	return fees, nil
}
