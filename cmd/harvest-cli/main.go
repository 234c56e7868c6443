package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"harvestpay/config"
	"harvestpay/core/inspect"
	"harvestpay/core/multisig"
	"harvestpay/core/settlement"
	"harvestpay/ledger"
)

// runtime bundles the wired settlement core for one CLI invocation. The
// engine is built lazily because read-only commands never need the platform
// signing key.
type runtime struct {
	cfg     *config.Config
	gateway ledger.Gateway
	log     *slog.Logger
}

var loadRuntime = func(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return &runtime{
		cfg:     cfg,
		gateway: ledger.NewClient(cfg.NodeURL, cfg.NodeAuthToken, cfg.RequestTimeout()),
		log:     log,
	}, nil
}

func (rt *runtime) engine() (*settlement.Engine, error) {
	key, err := rt.cfg.PlatformKey()
	if err != nil {
		return nil, fmt.Errorf("resolve platform key: %w", err)
	}
	return settlement.NewEngine(settlement.Config{
		NetworkName: rt.cfg.NetworkName,
		PlatformKey: key,
	}, rt.gateway, rt.log)
}

// claimEngine builds an engine without the platform key. Release and refund
// sign with the party's own key, so a farmer or buyer operator can run them
// without access to the platform keystore.
func (rt *runtime) claimEngine() (*settlement.Engine, error) {
	return settlement.NewEngine(settlement.Config{
		NetworkName: rt.cfg.NetworkName,
	}, rt.gateway, rt.log)
}

func (rt *runtime) provisioner() (*multisig.Provisioner, error) {
	return multisig.NewProvisioner(rt.cfg.NetworkName, rt.gateway, rt.log)
}

func (rt *runtime) inspector() (*inspect.Inspector, error) {
	return inspect.NewInspector(rt.gateway, rt.log)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	configPath := "harvestpay.toml"
	if v := strings.TrimSpace(os.Getenv("HARVESTPAY_CONFIG")); v != "" {
		configPath = v
	}

	// Global flags come before the command.
	for len(args) > 0 && strings.HasPrefix(args[0], "--") {
		switch {
		case args[0] == "--config" && len(args) > 1:
			configPath = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--config="):
			configPath = strings.TrimPrefix(args[0], "--config=")
			args = args[1:]
		default:
			fmt.Fprintf(stderr, "Unknown global flag: %s\n", args[0])
			fmt.Fprintln(stderr, usage())
			return 1
		}
	}

	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "create-escrow":
		return runCreateEscrow(args[1:], configPath, stdout, stderr)
	case "release":
		return runRelease(args[1:], configPath, stdout, stderr)
	case "refund":
		return runRefund(args[1:], configPath, stdout, stderr)
	case "setup-multisig":
		return runSetupMultiSig(args[1:], configPath, stdout, stderr)
	case "account":
		return runAccount(args[1:], configPath, stdout, stderr)
	case "fee":
		return runFee(args[1:], configPath, stdout, stderr)
	case "balances":
		return runBalances(args[1:], configPath, stdout, stderr)
	case "tx":
		return runTx(args[1:], configPath, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "Usage: harvest-cli [--config <path>] <command>")
	fmt.Fprintln(b, "Commands:")
	fmt.Fprintln(b, "  generate-key     Generate a fresh keypair and keystore file")
	fmt.Fprintln(b, "  create-escrow    Lock funds into a deadline-bounded escrow")
	fmt.Fprintln(b, "  release          Claim an escrow balance for the farmer")
	fmt.Fprintln(b, "  refund           Claim an escrow balance back for the buyer")
	fmt.Fprintln(b, "  setup-multisig   Provision cosigners and thresholds on an account")
	fmt.Fprintln(b, "  account          Show the on-ledger snapshot for an address")
	fmt.Fprintln(b, "  fee              Estimate the fee for a transaction")
	fmt.Fprintln(b, "  balances         List claimable balances for an address")
	fmt.Fprint(b, "  tx               Show the outcome of a submitted transaction")
	return b.String()
}

func printJSON(stdout io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}
