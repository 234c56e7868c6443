// Package ledger models the external settlement ledger as a remote
// capability: account lookups, fee statistics, transaction submission and
// claimable-balance queries. All durable state lives on the ledger; nothing
// here is cached across calls.
package ledger

import (
	"context"
	"errors"

	"harvestpay/core/claimable"
)

// Result codes surfaced by the ledger for submitted transactions. The
// settlement engine classifies outcomes from these, never from message text.
const (
	ResultOK                   = "ok"
	ResultBadSequence          = "tx_bad_seq"
	ResultInsufficientFee      = "tx_insufficient_fee"
	ResultUnderfunded          = "op_underfunded"
	ResultNoEntry              = "op_no_entry"
	ResultAlreadyClaimed       = "op_already_claimed"
	ResultPredicateUnsatisfied = "op_predicate_unsatisfied"
	ResultBadAuth              = "tx_bad_auth"
	ResultMalformed            = "tx_malformed"
)

// ErrNotFound marks a referenced account, balance or transaction unknown to
// the ledger.
var ErrNotFound = errors.New("ledger: not found")

// Signer is an entry in an account's signer list.
type Signer struct {
	Key    string `json:"key"`
	Weight uint8  `json:"weight"`
}

// Thresholds carries the minimum combined signer weights per operation
// sensitivity class. Each value ranges 0-255.
type Thresholds struct {
	Low    uint8 `json:"low"`
	Medium uint8 `json:"medium"`
	High   uint8 `json:"high"`
}

// AccountSnapshot is a read-only projection of on-ledger account state.
// Sequence numbers go stale as soon as a transaction lands, so snapshots are
// fetched fresh before every signing round and never reused.
type AccountSnapshot struct {
	Address    string     `json:"address"`
	Balance    string     `json:"balance"`
	Sequence   uint64     `json:"sequence"`
	Thresholds Thresholds `json:"thresholds"`
	Signers    []Signer   `json:"signers"`
}

// FeeStats reports the current network base fee per operation.
type FeeStats struct {
	BaseFee uint64 `json:"baseFee"`
}

// TxStatus is the terminal classification of a submitted transaction.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	TxStatusPending TxStatus = "pending"
)

// TransactionOutcome reports the fate of a single submission attempt.
type TransactionOutcome struct {
	Status     TxStatus `json:"status"`
	Hash       string   `json:"hash"`
	Ledger     uint64   `json:"ledger,omitempty"`
	ResultCode string   `json:"resultCode,omitempty"`
}

// SubmitResult is returned by a synchronous submission. CreatedBalanceIDs
// carries ledger-assigned identifiers for claimable balances created by the
// transaction; they cannot be predicted client-side.
type SubmitResult struct {
	Hash              string   `json:"hash"`
	Ledger            uint64   `json:"ledger,omitempty"`
	ResultCode        string   `json:"resultCode"`
	CreatedBalanceIDs []string `json:"createdBalanceIds,omitempty"`
}

// OK reports whether the ledger applied the transaction.
func (r *SubmitResult) OK() bool {
	return r != nil && r.ResultCode == ResultOK
}

// Gateway is the capability surface the settlement core consumes. Timeouts
// and envelope serialization are the implementation's concern; callers treat
// every method as a single remote round trip.
type Gateway interface {
	GetAccount(ctx context.Context, address string) (*AccountSnapshot, error)
	GetFeeStats(ctx context.Context) (*FeeStats, error)
	SubmitTransaction(ctx context.Context, env *SignedEnvelope) (*SubmitResult, error)
	GetTransaction(ctx context.Context, hash string) (*TransactionOutcome, error)
	GetClaimableBalances(ctx context.Context, claimant string) ([]claimable.Balance, error)
}
