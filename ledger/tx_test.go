package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"harvestpay/core/claimable"
	"harvestpay/crypto"
)

const testNetwork = "harvestpay-testnet"

func testTransaction(t *testing.T, source string) *Transaction {
	t.Helper()
	farmer, buyer, err := claimable.BuildEscrowPredicates(1_700_000_000)
	require.NoError(t, err)
	return &Transaction{
		SourceAccount: source,
		Sequence:      7,
		Fee:           100,
		Memo:          "order-42",
		Operations: []Operation{
			CreateClaimableBalanceOp(claimable.NativeAsset(), "10", []claimable.Claimant{
				{Address: "hp1farmer", Predicate: farmer},
				{Address: "hp1buyer", Predicate: buyer},
			}),
		},
	}
}

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx := testTransaction(t, key.Address().String())

	env, err := tx.Sign(testNetwork, key)
	require.NoError(t, err)
	require.NotEmpty(t, env.Hash())
	require.NotEmpty(t, env.Signature)

	ok, err := env.VerifySignature(testNetwork, key.Address())
	require.NoError(t, err)
	require.True(t, ok)

	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	ok, err = env.VerifySignature(testNetwork, other.Address())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignHashIsNetworkScoped(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx := testTransaction(t, key.Address().String())

	mainnet, err := tx.Sign("harvestpay-mainnet", key)
	require.NoError(t, err)
	testnet, err := tx.Sign(testNetwork, key)
	require.NoError(t, err)
	require.NotEqual(t, mainnet.Hash(), testnet.Hash())

	again, err := tx.Sign(testNetwork, key)
	require.NoError(t, err)
	require.Equal(t, testnet.Hash(), again.Hash())
}

func TestSignRejectsInvalidTransactions(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	tx := testTransaction(t, key.Address().String())
	tx.Fee = 0
	_, err = tx.Sign(testNetwork, key)
	require.Error(t, err)

	tx = testTransaction(t, "")
	_, err = tx.Sign(testNetwork, key)
	require.Error(t, err)

	tx = testTransaction(t, key.Address().String())
	tx.Operations = nil
	_, err = tx.Sign(testNetwork, key)
	require.Error(t, err)

	tx = testTransaction(t, key.Address().String())
	_, err = tx.Sign("", key)
	require.Error(t, err)
	_, err = tx.Sign(testNetwork, nil)
	require.Error(t, err)
}

func TestOperationValidation(t *testing.T) {
	require.Error(t, Operation{Type: OpCreateClaimableBalance}.validate())
	require.Error(t, ClaimClaimableBalanceOp("").validate())
	require.Error(t, AddSignerOp("", 1).validate())
	require.Error(t, AddSignerOp("hp1cosigner", 0).validate())
	require.Error(t, Operation{Type: OpSetThresholds}.validate())
	require.Error(t, Operation{Type: "burn"}.validate())
	require.NoError(t, SetThresholdsOp(Thresholds{Low: 2, Medium: 2, High: 2}).validate())
}
