// Package multisig provisions cosigner sets and signing thresholds on
// ledger accounts. Installation is a single atomic transaction: either the
// full signer set and thresholds apply, or nothing does.
package multisig

import (
	"context"
	"errors"
	"log/slog"

	"harvestpay/core/fault"
	"harvestpay/crypto"
	"harvestpay/ledger"
)

// SetupRequest describes the desired signer configuration for an account.
// The primary signer keeps its implicit weight of 1 and each cosigner is
// installed at weight 1, so the reachable combined weight is
// 1 + len(CosignerPublicKeys).
type SetupRequest struct {
	PrimaryPublicKey   string   `json:"primaryPublicKey"`
	CosignerPublicKeys []string `json:"cosignerPublicKeys"`
	Threshold          uint8    `json:"threshold"`
	SourceSecretKey    string   `json:"sourceSecretKey"`
}

// SetupReceipt reports a confirmed provisioning transaction.
type SetupReceipt struct {
	Status          ledger.TxStatus `json:"status"`
	TransactionHash string          `json:"transactionHash"`
}

// Provisioner builds and submits multisig provisioning transactions.
type Provisioner struct {
	networkName string
	gateway     ledger.Gateway
	log         *slog.Logger
}

// NewProvisioner wires a provisioner to a ledger gateway.
func NewProvisioner(networkName string, gateway ledger.Gateway, log *slog.Logger) (*Provisioner, error) {
	if networkName == "" {
		return nil, errors.New("multisig: network name not configured")
	}
	if gateway == nil {
		return nil, errors.New("multisig: ledger gateway not configured")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{networkName: networkName, gateway: gateway, log: log}, nil
}

// SetupAccount installs the cosigners and thresholds. Threshold feasibility
// is checked before any ledger round trip; the medium threshold is the one
// subsequent payment operations are measured against.
func (p *Provisioner) SetupAccount(ctx context.Context, req SetupRequest) (*SetupReceipt, error) {
	primary, err := crypto.DecodeAddress(req.PrimaryPublicKey)
	if err != nil {
		return nil, fault.Validationf("primaryPublicKey", "not a valid ledger address").Wrap(err)
	}
	if len(req.CosignerPublicKeys) == 0 {
		return nil, fault.Validationf("cosignerPublicKeys", "at least one cosigner required")
	}
	seen := map[string]bool{primary.String(): true}
	cosigners := make([]crypto.Address, 0, len(req.CosignerPublicKeys))
	for _, raw := range req.CosignerPublicKeys {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fault.Validationf("cosignerPublicKeys", "cosigner %q is not a valid ledger address", raw).Wrap(err)
		}
		if seen[addr.String()] {
			return nil, fault.Validationf("cosignerPublicKeys", "duplicate signer %s", addr.String())
		}
		seen[addr.String()] = true
		cosigners = append(cosigners, addr)
	}
	if req.Threshold == 0 {
		return nil, fault.Validationf("threshold", "must be at least 1")
	}
	if int(req.Threshold) > 1+len(cosigners) {
		return nil, fault.Validationf("threshold", "threshold exceeds available signer weight")
	}
	key, err := crypto.ParsePrivateKey(req.SourceSecretKey)
	if err != nil {
		return nil, fault.Validationf("sourceSecretKey", "not a valid secret key").Wrap(err)
	}
	if !key.Address().Equal(primary) {
		return nil, fault.Validationf("sourceSecretKey", "does not control primaryPublicKey")
	}

	account, err := p.gateway.GetAccount(ctx, primary.String())
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fault.NotFound("account", primary.String())
		}
		return nil, fault.Queryf("fetch account %s", primary.String()).Wrap(err)
	}
	fees, err := p.gateway.GetFeeStats(ctx)
	if err != nil {
		return nil, fault.Queryf("fetch network fee stats").Wrap(err)
	}

	ops := make([]ledger.Operation, 0, len(cosigners)+1)
	for _, cosigner := range cosigners {
		ops = append(ops, ledger.AddSignerOp(cosigner.String(), 1))
	}
	ops = append(ops, ledger.SetThresholdsOp(ledger.Thresholds{
		Low:    req.Threshold,
		Medium: req.Threshold,
		High:   req.Threshold,
	}))

	tx := &ledger.Transaction{
		SourceAccount: primary.String(),
		Sequence:      account.Sequence + 1,
		Fee:           fees.BaseFee * uint64(len(ops)),
		Operations:    ops,
	}
	env, err := tx.Sign(p.networkName, key)
	if err != nil {
		return nil, fault.Submissionf("build multisig transaction: %v", err)
	}

	result, err := p.gateway.SubmitTransaction(ctx, env)
	if err != nil {
		return nil, fault.Submissionf("submission outcome pending or unknown, re-query transaction %s", env.Hash()).Wrap(err)
	}
	if !result.OK() {
		return nil, fault.Submission(result.ResultCode, errors.New("multisig provisioning rejected"))
	}

	p.log.Info("multisig account provisioned",
		"account", primary.String(),
		"cosigners", len(cosigners),
		"threshold", req.Threshold,
		"txHash", result.Hash,
	)
	return &SetupReceipt{Status: ledger.TxStatusSuccess, TransactionHash: result.Hash}, nil
}
