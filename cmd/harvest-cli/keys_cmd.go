package main

import (
	"flag"
	"fmt"
	"io"

	"harvestpay/cmd/internal/passphrase"
	"harvestpay/crypto"
)

var keystorePassphrase = passphrase.NewSource("HARVESTPAY_KEYSTORE_PASSPHRASE")

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		out        string
		showSecret bool
	)
	fs.StringVar(&out, "out", "keystore.json", "path for the encrypted keystore file")
	fs.BoolVar(&showSecret, "show-secret", false, "print the hex secret key to stdout")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, fmt.Sprintf("generate key: %v", err))
	}
	pass, err := keystorePassphrase.Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		return printError(stderr, fmt.Sprintf("save keystore: %v", err))
	}

	fmt.Fprintf(stdout, "Address:  %s\n", key.Address().String())
	fmt.Fprintf(stdout, "Keystore: %s\n", out)
	if showSecret {
		fmt.Fprintf(stdout, "Secret:   %s\n", key.Hex())
	}
	if pass == "" {
		fmt.Fprintln(stderr, "Warning: keystore encrypted with an empty passphrase; set HARVESTPAY_KEYSTORE_PASSPHRASE")
	}
	return 0
}

// loadSecretKey reads an encrypted keystore and returns the hex-encoded
// secret, which the settlement core consumes transiently for signing.
func loadSecretKey(path string) (string, error) {
	pass, err := keystorePassphrase.Get()
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return "", fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key.Hex(), nil
}
