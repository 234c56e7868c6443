// Package inspect provides the read-only ledger queries: account snapshots,
// fee estimates, claimant balance listings and transaction outcomes.
package inspect

import (
	"context"
	"errors"
	"log/slog"

	"harvestpay/core/claimable"
	"harvestpay/core/fault"
	"harvestpay/crypto"
	"harvestpay/ledger"
)

// FeeEstimate prices a transaction with the given operation count at the
// current network base fee.
type FeeEstimate struct {
	BaseFee           uint64 `json:"baseFee"`
	FeePerOperation   uint64 `json:"feePerOperation"`
	OperationCount    int    `json:"operationCount"`
	EstimatedTotalFee uint64 `json:"estimatedTotalFee"`
	CurrentNetworkFee uint64 `json:"currentNetworkFee"`
}

// Inspector answers read-only queries against the ledger gateway. It never
// submits transactions and never caches results: sequence numbers and
// balance states must be current for any subsequent signing.
type Inspector struct {
	gateway ledger.Gateway
	log     *slog.Logger
}

// NewInspector wires an inspector to a ledger gateway.
func NewInspector(gateway ledger.Gateway, log *slog.Logger) (*Inspector, error) {
	if gateway == nil {
		return nil, errors.New("inspect: ledger gateway not configured")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Inspector{gateway: gateway, log: log}, nil
}

// AccountInfo fetches the current on-ledger snapshot for an account.
func (i *Inspector) AccountInfo(ctx context.Context, publicKey string) (*ledger.AccountSnapshot, error) {
	addr, err := crypto.DecodeAddress(publicKey)
	if err != nil {
		return nil, fault.Validationf("publicKey", "not a valid ledger address").Wrap(err)
	}
	snapshot, err := i.gateway.GetAccount(ctx, addr.String())
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fault.NotFound("account", addr.String())
		}
		return nil, fault.Queryf("fetch account %s", addr.String()).Wrap(err)
	}
	return snapshot, nil
}

// EstimateFee prices a transaction carrying operationCount operations.
func (i *Inspector) EstimateFee(ctx context.Context, operationCount int) (*FeeEstimate, error) {
	if operationCount < 1 {
		return nil, fault.Validationf("operationCount", "must be at least 1, got %d", operationCount)
	}
	fees, err := i.gateway.GetFeeStats(ctx)
	if err != nil {
		return nil, fault.Queryf("fetch network fee stats").Wrap(err)
	}
	return &FeeEstimate{
		BaseFee:           fees.BaseFee,
		FeePerOperation:   fees.BaseFee,
		OperationCount:    operationCount,
		EstimatedTotalFee: fees.BaseFee * uint64(operationCount),
		CurrentNetworkFee: fees.BaseFee,
	}, nil
}

// ClaimableBalances lists every balance naming the address as a claimant,
// in the order the ledger returns them.
func (i *Inspector) ClaimableBalances(ctx context.Context, publicKey string) ([]claimable.Balance, error) {
	addr, err := crypto.DecodeAddress(publicKey)
	if err != nil {
		return nil, fault.Validationf("publicKey", "not a valid ledger address").Wrap(err)
	}
	balances, err := i.gateway.GetClaimableBalances(ctx, addr.String())
	if err != nil {
		return nil, fault.Queryf("list claimable balances for %s", addr.String()).Wrap(err)
	}
	return balances, nil
}

// TransactionStatus reports the outcome of a previously submitted
// transaction hash.
func (i *Inspector) TransactionStatus(ctx context.Context, hash string) (*ledger.TransactionOutcome, error) {
	if hash == "" {
		return nil, fault.Validationf("transactionHash", "must not be empty")
	}
	outcome, err := i.gateway.GetTransaction(ctx, hash)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fault.NotFound("transaction", hash)
		}
		return nil, fault.Queryf("fetch transaction %s", hash).Wrap(err)
	}
	return outcome, nil
}
