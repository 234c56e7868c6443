package multisig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"harvestpay/core/claimable"
	"harvestpay/core/fault"
	"harvestpay/crypto"
	"harvestpay/ledger"
)

const testNetwork = "harvestpay-testnet"

type mockGateway struct {
	sequence   uint64
	accountErr error
	submitErr  error
	resultCode string

	calls     int
	submitted *ledger.SignedEnvelope
}

func (m *mockGateway) GetAccount(context.Context, string) (*ledger.AccountSnapshot, error) {
	m.calls++
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	return &ledger.AccountSnapshot{Sequence: m.sequence}, nil
}

func (m *mockGateway) GetFeeStats(context.Context) (*ledger.FeeStats, error) {
	m.calls++
	return &ledger.FeeStats{BaseFee: 100}, nil
}

func (m *mockGateway) SubmitTransaction(_ context.Context, env *ledger.SignedEnvelope) (*ledger.SubmitResult, error) {
	m.calls++
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = env
	code := m.resultCode
	if code == "" {
		code = ledger.ResultOK
	}
	return &ledger.SubmitResult{Hash: env.Hash(), Ledger: 700, ResultCode: code}, nil
}

func (m *mockGateway) GetTransaction(context.Context, string) (*ledger.TransactionOutcome, error) {
	m.calls++
	return nil, errors.New("not implemented")
}

func (m *mockGateway) GetClaimableBalances(context.Context, string) ([]claimable.Balance, error) {
	m.calls++
	return nil, errors.New("not implemented")
}

func newSetupRequest(t *testing.T, cosigners int) (SetupRequest, *crypto.PrivateKey) {
	t.Helper()
	primary, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	req := SetupRequest{
		PrimaryPublicKey: primary.Address().String(),
		Threshold:        2,
		SourceSecretKey:  primary.Hex(),
	}
	for i := 0; i < cosigners; i++ {
		key, err := crypto.GeneratePrivateKey()
		require.NoError(t, err)
		req.CosignerPublicKeys = append(req.CosignerPublicKeys, key.Address().String())
	}
	return req, primary
}

func TestSetupAccountHappyPath(t *testing.T) {
	mock := &mockGateway{sequence: 5}
	prov, err := NewProvisioner(testNetwork, mock, nil)
	require.NoError(t, err)

	req, primary := newSetupRequest(t, 2)
	receipt, err := prov.SetupAccount(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ledger.TxStatusSuccess, receipt.Status)
	require.NotEmpty(t, receipt.TransactionHash)

	// One add_signer per cosigner plus the threshold op, in one envelope.
	require.NotNil(t, mock.submitted)
	tx := mock.submitted.Tx
	require.Equal(t, primary.Address().String(), tx.SourceAccount)
	require.Equal(t, uint64(6), tx.Sequence)
	require.Len(t, tx.Operations, 3)
	for _, op := range tx.Operations[:2] {
		require.Equal(t, ledger.OpAddSigner, op.Type)
		require.Equal(t, uint8(1), op.Signer.Weight)
	}
	last := tx.Operations[2]
	require.Equal(t, ledger.OpSetThresholds, last.Type)
	require.Equal(t, ledger.Thresholds{Low: 2, Medium: 2, High: 2}, *last.Thresholds)
	require.Equal(t, uint64(300), tx.Fee)
}

func TestSetupAccountInfeasibleThresholdNoNetworkCall(t *testing.T) {
	mock := &mockGateway{}
	prov, err := NewProvisioner(testNetwork, mock, nil)
	require.NoError(t, err)

	req, _ := newSetupRequest(t, 2)
	req.Threshold = 4 // exceeds 1 + 2 cosigners

	_, err = prov.SetupAccount(context.Background(), req)
	require.True(t, fault.IsKind(err, fault.KindValidation), "got %v", err)
	require.Contains(t, err.Error(), "threshold exceeds available signer weight")
	require.Zero(t, mock.calls, "infeasible threshold must not touch the network")
	require.Nil(t, mock.submitted)
}

func TestSetupAccountValidation(t *testing.T) {
	mock := &mockGateway{}
	prov, err := NewProvisioner(testNetwork, mock, nil)
	require.NoError(t, err)

	valid, _ := newSetupRequest(t, 1)
	stranger, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*SetupRequest)
		field  string
	}{
		{"bad primary", func(r *SetupRequest) { r.PrimaryPublicKey = "nope" }, "primaryPublicKey"},
		{"no cosigners", func(r *SetupRequest) { r.CosignerPublicKeys = nil }, "cosignerPublicKeys"},
		{"bad cosigner", func(r *SetupRequest) { r.CosignerPublicKeys = []string{"nope"} }, "cosignerPublicKeys"},
		{"duplicate cosigner", func(r *SetupRequest) {
			r.CosignerPublicKeys = append(r.CosignerPublicKeys, r.CosignerPublicKeys[0])
		}, "cosignerPublicKeys"},
		{"primary listed as cosigner", func(r *SetupRequest) {
			r.CosignerPublicKeys = append(r.CosignerPublicKeys, r.PrimaryPublicKey)
		}, "cosignerPublicKeys"},
		{"zero threshold", func(r *SetupRequest) { r.Threshold = 0 }, "threshold"},
		{"bad secret", func(r *SetupRequest) { r.SourceSecretKey = "zzzz" }, "sourceSecretKey"},
		{"foreign secret", func(r *SetupRequest) { r.SourceSecretKey = stranger.Hex() }, "sourceSecretKey"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			req.CosignerPublicKeys = append([]string(nil), valid.CosignerPublicKeys...)
			tc.mutate(&req)
			before := mock.calls
			_, err := prov.SetupAccount(context.Background(), req)
			var fe *fault.Error
			require.ErrorAs(t, err, &fe)
			require.Equal(t, fault.KindValidation, fe.Kind)
			require.Equal(t, tc.field, fe.Field)
			require.Equal(t, before, mock.calls)
		})
	}
}

func TestSetupAccountThresholdEqualsAvailableWeight(t *testing.T) {
	mock := &mockGateway{}
	prov, err := NewProvisioner(testNetwork, mock, nil)
	require.NoError(t, err)

	req, _ := newSetupRequest(t, 2)
	req.Threshold = 3 // exactly 1 + 2 cosigners

	_, err = prov.SetupAccount(context.Background(), req)
	require.NoError(t, err)
}

func TestSetupAccountLedgerRejection(t *testing.T) {
	mock := &mockGateway{resultCode: ledger.ResultUnderfunded}
	prov, err := NewProvisioner(testNetwork, mock, nil)
	require.NoError(t, err)

	req, _ := newSetupRequest(t, 1)
	_, err = prov.SetupAccount(context.Background(), req)
	require.True(t, fault.IsKind(err, fault.KindSubmission), "got %v", err)
	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, ledger.ResultUnderfunded, fe.ResultCode)
}

func TestSetupAccountUnknownAccount(t *testing.T) {
	mock := &mockGateway{accountErr: ledger.ErrNotFound}
	prov, err := NewProvisioner(testNetwork, mock, nil)
	require.NoError(t, err)

	req, _ := newSetupRequest(t, 1)
	_, err = prov.SetupAccount(context.Background(), req)
	require.True(t, fault.IsKind(err, fault.KindNotFound), "got %v", err)
}
