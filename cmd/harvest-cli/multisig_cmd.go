package main

import (
	"context"
	"flag"
	"io"
	"strings"

	"harvestpay/core/multisig"
)

func runSetupMultiSig(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("setup-multisig", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		primary   string
		cosigners string
		threshold uint
		keyFile   string
	)
	fs.StringVar(&primary, "primary", "", "account to provision")
	fs.StringVar(&cosigners, "cosigners", "", "comma-separated cosigner addresses")
	fs.UintVar(&threshold, "threshold", 0, "required signature weight")
	fs.StringVar(&keyFile, "key-file", "", "keystore file holding the primary account's key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if primary == "" {
		return printError(stderr, "--primary is required")
	}
	if cosigners == "" {
		return printError(stderr, "--cosigners is required")
	}
	if threshold == 0 || threshold > 255 {
		return printError(stderr, "--threshold must be between 1 and 255")
	}
	if keyFile == "" {
		return printError(stderr, "--key-file is required")
	}

	var list []string
	for _, c := range strings.Split(cosigners, ",") {
		if c = strings.TrimSpace(c); c != "" {
			list = append(list, c)
		}
	}

	secret, err := loadSecretKey(keyFile)
	if err != nil {
		return printError(stderr, err.Error())
	}
	rt, err := loadRuntime(configPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	provisioner, err := rt.provisioner()
	if err != nil {
		return printError(stderr, err.Error())
	}
	receipt, err := provisioner.SetupAccount(context.Background(), multisig.SetupRequest{
		PrimaryPublicKey:   primary,
		CosignerPublicKeys: list,
		Threshold:          uint8(threshold),
		SourceSecretKey:    secret,
	})
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, receipt)
}
