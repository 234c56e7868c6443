package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"harvestpay/core/claimable"
	"harvestpay/crypto"
)

// OpType enumerates the closed set of operations the settlement core emits.
type OpType string

const (
	OpCreateClaimableBalance OpType = "create_claimable_balance"
	OpClaimClaimableBalance  OpType = "claim_claimable_balance"
	OpAddSigner              OpType = "add_signer"
	OpSetThresholds          OpType = "set_thresholds"
)

// Operation is one ledger operation inside a transaction. Exactly the fields
// for its type are populated; the rest stay nil and are omitted on the wire.
type Operation struct {
	Type OpType `json:"type"`

	Asset     *claimable.Asset     `json:"asset,omitempty"`
	Amount    string               `json:"amount,omitempty"`
	Claimants []claimable.Claimant `json:"claimants,omitempty"`

	BalanceID string `json:"balanceId,omitempty"`

	Signer     *Signer     `json:"signer,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
}

// CreateClaimableBalanceOp funds a claimable balance with the given claimant
// set.
func CreateClaimableBalanceOp(asset claimable.Asset, amount string, claimants []claimable.Claimant) Operation {
	return Operation{
		Type:      OpCreateClaimableBalance,
		Asset:     &asset,
		Amount:    amount,
		Claimants: append([]claimable.Claimant(nil), claimants...),
	}
}

// ClaimClaimableBalanceOp claims an existing balance. The ledger evaluates
// the source account's predicate at apply time.
func ClaimClaimableBalanceOp(balanceID string) Operation {
	return Operation{Type: OpClaimClaimableBalance, BalanceID: balanceID}
}

// AddSignerOp installs a cosigner with the given weight on the source
// account.
func AddSignerOp(key string, weight uint8) Operation {
	return Operation{Type: OpAddSigner, Signer: &Signer{Key: key, Weight: weight}}
}

// SetThresholdsOp replaces the source account's operation thresholds.
func SetThresholdsOp(t Thresholds) Operation {
	return Operation{Type: OpSetThresholds, Thresholds: &t}
}

func (op Operation) validate() error {
	switch op.Type {
	case OpCreateClaimableBalance:
		if op.Asset == nil || op.Amount == "" || len(op.Claimants) == 0 {
			return fmt.Errorf("ledger: create_claimable_balance operation incomplete")
		}
		for _, c := range op.Claimants {
			if c.Address == "" {
				return fmt.Errorf("ledger: claimant missing address")
			}
			if err := c.Predicate.Validate(); err != nil {
				return err
			}
		}
	case OpClaimClaimableBalance:
		if op.BalanceID == "" {
			return fmt.Errorf("ledger: claim operation missing balance id")
		}
	case OpAddSigner:
		if op.Signer == nil || op.Signer.Key == "" || op.Signer.Weight == 0 {
			return fmt.Errorf("ledger: add_signer operation incomplete")
		}
	case OpSetThresholds:
		if op.Thresholds == nil {
			return fmt.Errorf("ledger: set_thresholds operation missing thresholds")
		}
	default:
		return fmt.Errorf("ledger: unknown operation type %q", op.Type)
	}
	return nil
}

// Transaction is the unsigned envelope body. Sequence must be the source
// account's next sequence number; the ledger consumes it on submission,
// which is what makes blind resubmission safe against double effects.
type Transaction struct {
	SourceAccount string      `json:"sourceAccount"`
	Sequence      uint64      `json:"sequence"`
	Fee           uint64      `json:"fee"`
	Memo          string      `json:"memo,omitempty"`
	Operations    []Operation `json:"operations"`
}

// Validate checks the envelope body before signing.
func (tx *Transaction) Validate() error {
	if tx.SourceAccount == "" {
		return fmt.Errorf("ledger: transaction missing source account")
	}
	if tx.Fee == 0 {
		return fmt.Errorf("ledger: transaction fee must be positive")
	}
	if len(tx.Operations) == 0 {
		return fmt.Errorf("ledger: transaction carries no operations")
	}
	for _, op := range tx.Operations {
		if err := op.validate(); err != nil {
			return err
		}
	}
	return nil
}

// SignedEnvelope is the wire form handed to the gateway: the transaction
// body plus a hex-encoded secp256k1 signature over the network-scoped hash.
type SignedEnvelope struct {
	Tx        Transaction `json:"tx"`
	Signature string      `json:"signature"`

	hash string
}

// Hash returns the network-scoped transaction hash, usable to re-query an
// outcome after a timed-out submission.
func (e *SignedEnvelope) Hash() string {
	return e.hash
}

func txDigest(networkName string, tx *Transaction) ([]byte, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(networkName), payload), nil
}

// Sign produces the submission envelope. The network name acts as a domain
// separator so envelopes signed for a test network can never replay on
// another.
func (tx *Transaction) Sign(networkName string, key *crypto.PrivateKey) (*SignedEnvelope, error) {
	if networkName == "" {
		return nil, fmt.Errorf("ledger: network name required for signing")
	}
	if key == nil {
		return nil, fmt.Errorf("ledger: nil signing key")
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	digest, err := txDigest(networkName, tx)
	if err != nil {
		return nil, err
	}
	sig, err := ethcrypto.Sign(digest, key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign transaction: %w", err)
	}
	return &SignedEnvelope{
		Tx:        *tx,
		Signature: hex.EncodeToString(sig),
		hash:      hex.EncodeToString(digest),
	}, nil
}

// VerifySignature checks that the envelope was signed by the holder of the
// key controlling the given address on the given network.
func (e *SignedEnvelope) VerifySignature(networkName string, signer crypto.Address) (bool, error) {
	digest, err := txDigest(networkName, &e.Tx)
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false, fmt.Errorf("ledger: malformed signature: %w", err)
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("ledger: recover signer: %w", err)
	}
	recovered, err := crypto.NewAddress(crypto.HPPrefix, ethcrypto.PubkeyToAddress(*pub).Bytes())
	if err != nil {
		return false, err
	}
	return recovered.Equal(signer), nil
}
