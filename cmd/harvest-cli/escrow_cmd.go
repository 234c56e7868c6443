package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"harvestpay/core/settlement"
)

var cliNow = time.Now

func runCreateEscrow(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create-escrow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		farmer      string
		buyer       string
		amount      string
		assetCode   string
		assetIssuer string
		deadline    string
		orderID     string
	)
	fs.StringVar(&farmer, "farmer", "", "farmer address")
	fs.StringVar(&buyer, "buyer", "", "buyer address")
	fs.StringVar(&amount, "amount", "", "escrow amount as a decimal string")
	fs.StringVar(&assetCode, "asset-code", "", "asset code (defaults to the native asset)")
	fs.StringVar(&assetIssuer, "asset-issuer", "", "issuer address for non-native assets")
	fs.StringVar(&deadline, "deadline", "", "deadline as +duration or RFC3339 timestamp")
	fs.StringVar(&orderID, "order", "", "marketplace order identifier for the memo")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if farmer == "" {
		return printError(stderr, "--farmer is required")
	}
	if buyer == "" {
		return printError(stderr, "--buyer is required")
	}
	if amount == "" {
		return printError(stderr, "--amount is required")
	}
	if deadline == "" {
		return printError(stderr, "--deadline is required")
	}
	if orderID == "" {
		return printError(stderr, "--order is required")
	}
	deadlineUnix, err := parseDeadline(deadline, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}

	rt, err := loadRuntime(configPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	engine, err := rt.engine()
	if err != nil {
		return printError(stderr, err.Error())
	}
	receipt, err := engine.CreateEscrow(context.Background(), settlement.EscrowRequest{
		FarmerPublicKey: farmer,
		BuyerPublicKey:  buyer,
		Amount:          amount,
		AssetCode:       assetCode,
		AssetIssuer:     assetIssuer,
		DeadlineUnix:    deadlineUnix,
		OrderID:         orderID,
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, receipt)
}

func runRelease(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("release", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		balanceID string
		farmer    string
		keyFile   string
	)
	fs.StringVar(&balanceID, "balance", "", "claimable balance identifier")
	fs.StringVar(&farmer, "farmer", "", "farmer address")
	fs.StringVar(&keyFile, "key-file", "", "keystore file holding the farmer's key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if balanceID == "" {
		return printError(stderr, "--balance is required")
	}
	if farmer == "" {
		return printError(stderr, "--farmer is required")
	}
	if keyFile == "" {
		return printError(stderr, "--key-file is required")
	}
	secret, err := loadSecretKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}

	rt, err := loadRuntime(configPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	engine, err := rt.claimEngine()
	if err != nil {
		return printError(stderr, err.Error())
	}
	receipt, err := engine.ReleasePayment(context.Background(), settlement.ReleaseRequest{
		BalanceID:       balanceID,
		FarmerPublicKey: farmer,
		FarmerSecretKey: secret,
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, receipt)
}

func runRefund(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("refund", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		balanceID string
		buyer     string
		keyFile   string
	)
	fs.StringVar(&balanceID, "balance", "", "claimable balance identifier")
	fs.StringVar(&buyer, "buyer", "", "buyer address")
	fs.StringVar(&keyFile, "key-file", "", "keystore file holding the buyer's key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if balanceID == "" {
		return printError(stderr, "--balance is required")
	}
	if buyer == "" {
		return printError(stderr, "--buyer is required")
	}
	if keyFile == "" {
		return printError(stderr, "--key-file is required")
	}
	secret, err := loadSecretKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}

	rt, err := loadRuntime(configPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	engine, err := rt.claimEngine()
	if err != nil {
		return printError(stderr, err.Error())
	}
	receipt, err := engine.RefundEscrow(context.Background(), settlement.RefundRequest{
		BalanceID:      balanceID,
		BuyerPublicKey: buyer,
		BuyerSecretKey: secret,
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, receipt)
}

// parseDeadline accepts either a relative +duration ("+72h") anchored on now
// or an absolute RFC3339 timestamp, and returns the unix deadline.
func parseDeadline(raw string, now time.Time) (int64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "+") {
		dur, err := time.ParseDuration(raw[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid deadline duration %q", raw)
		}
		if dur <= 0 {
			return 0, fmt.Errorf("deadline duration must be positive")
		}
		return now.Add(dur).Unix(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("deadline must be +duration or RFC3339, got %q", raw)
	}
	return ts.Unix(), nil
}
