package main

import (
	"context"
	"flag"
	"io"

	"harvestpay/core/inspect"
)

func runAccount(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var address string
	fs.StringVar(&address, "address", "", "account address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printError(stderr, "--address is required")
	}

	inspector, code := loadInspector(configPath, stderr)
	if inspector == nil {
		return code
	}
	snapshot, err := inspector.AccountInfo(context.Background(), address)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, snapshot)
}

func runFee(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fee", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var operations int
	fs.IntVar(&operations, "operations", 1, "number of operations in the transaction")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	inspector, code := loadInspector(configPath, stderr)
	if inspector == nil {
		return code
	}
	estimate, err := inspector.EstimateFee(context.Background(), operations)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, estimate)
}

func runBalances(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balances", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var address string
	fs.StringVar(&address, "address", "", "claimant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printError(stderr, "--address is required")
	}

	inspector, code := loadInspector(configPath, stderr)
	if inspector == nil {
		return code
	}
	balances, err := inspector.ClaimableBalances(context.Background(), address)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, balances)
}

func runTx(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var hash string
	fs.StringVar(&hash, "hash", "", "transaction hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if hash == "" {
		return printError(stderr, "--hash is required")
	}

	inspector, code := loadInspector(configPath, stderr)
	if inspector == nil {
		return code
	}
	outcome, err := inspector.TransactionStatus(context.Background(), hash)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, outcome)
}

func loadInspector(configPath string, stderr io.Writer) (*inspect.Inspector, int) {
	rt, err := loadRuntime(configPath)
	if err != nil {
		return nil, printError(stderr, err.Error())
	}
	inspector, err := rt.inspector()
	if err != nil {
		return nil, printError(stderr, err.Error())
	}
	return inspector, 0
}
