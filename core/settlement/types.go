package settlement

import "harvestpay/ledger"

// EscrowRequest describes a new escrow lock funded by the platform on the
// buyer's behalf. OrderID is an opaque correlation token; it travels in the
// transaction memo and is never interpreted by the ledger.
type EscrowRequest struct {
	FarmerPublicKey string `json:"farmerPublicKey"`
	BuyerPublicKey  string `json:"buyerPublicKey"`
	Amount          string `json:"amount"`
	AssetCode       string `json:"assetCode,omitempty"`
	AssetIssuer     string `json:"assetIssuer,omitempty"`
	DeadlineUnix    int64  `json:"deadlineUnixTimestamp"`
	OrderID         string `json:"orderId"`
}

// EscrowReceipt reports a confirmed escrow creation. BalanceID is assigned
// by the ledger and extracted from the transaction result.
type EscrowReceipt struct {
	BalanceID       string `json:"balanceId"`
	TransactionHash string `json:"transactionHash"`
	Amount          string `json:"amount"`
	AssetCode       string `json:"assetCode"`
	FarmerPublicKey string `json:"farmerPublicKey"`
	BuyerPublicKey  string `json:"buyerPublicKey"`
}

// ReleaseRequest asks the engine to claim an escrow balance for the farmer.
// The secret key is used transiently to sign the claim and is never stored.
type ReleaseRequest struct {
	BalanceID       string `json:"balanceId"`
	FarmerPublicKey string `json:"farmerPublicKey"`
	FarmerSecretKey string `json:"farmerSecretKey"`
}

// RefundRequest asks the engine to claim an escrow balance back for the
// buyer after the deadline.
type RefundRequest struct {
	BalanceID      string `json:"balanceId"`
	BuyerPublicKey string `json:"buyerPublicKey"`
	BuyerSecretKey string `json:"buyerSecretKey"`
}

// ClaimReceipt reports a confirmed claim submission.
type ClaimReceipt struct {
	Status          ledger.TxStatus `json:"status"`
	TransactionHash string          `json:"transactionHash"`
}
