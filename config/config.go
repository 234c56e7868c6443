// Package config loads the platform configuration consumed by the
// settlement engine, the provisioner and the CLI. Configuration is an
// explicit immutable object injected at construction; nothing reads it from
// ambient globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"harvestpay/crypto"
)

// Config captures platform-wide settings.
type Config struct {
	// NodeURL is the ledger node's JSON-RPC endpoint.
	NodeURL string `toml:"NodeURL"`
	// NodeAuthToken is sent as a bearer token on every gateway call.
	NodeAuthToken string `toml:"NodeAuthToken"`
	// NetworkName scopes transaction signatures to one ledger network.
	NetworkName string `toml:"NetworkName"`
	// PlatformKeystorePath points at the encrypted keystore holding the
	// platform's signing key.
	PlatformKeystorePath string `toml:"PlatformKeystorePath"`
	// PlatformKeyEnv optionally names an environment variable carrying the
	// platform key as hex. When set it takes precedence over the keystore,
	// which keeps local development out of the keystore flow.
	PlatformKeyEnv string `toml:"PlatformKeyEnv"`
	// RequestTimeoutSeconds bounds each ledger round trip.
	RequestTimeoutSeconds int `toml:"RequestTimeoutSeconds"`
}

const (
	defaultNetworkName    = "harvestpay-local"
	defaultRequestTimeout = 10
)

// Load reads the configuration from the given path, creating a default file
// (and keystore) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if strings.TrimSpace(cfg.NodeURL) == "" {
		return nil, fmt.Errorf("config %s: NodeURL is required", path)
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if cfg.PlatformKeystorePath == "" && cfg.PlatformKeyEnv == "" {
		return nil, fmt.Errorf("config %s: one of PlatformKeystorePath or PlatformKeyEnv is required", path)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("HARVESTPAY_NODE_URL")); v != "" {
		cfg.NodeURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HARVESTPAY_NODE_TOKEN")); v != "" {
		cfg.NodeAuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("HARVESTPAY_NETWORK")); v != "" {
		cfg.NetworkName = v
	}
}

// RequestTimeout returns the per-call gateway timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PlatformKey resolves the platform signing key: from the configured
// environment variable when set, otherwise from the keystore. The
// passphrase is read from HARVESTPAY_KEYSTORE_PASSPHRASE.
func (c *Config) PlatformKey() (*crypto.PrivateKey, error) {
	if c.PlatformKeyEnv != "" {
		raw := strings.TrimSpace(os.Getenv(c.PlatformKeyEnv))
		if raw == "" {
			return nil, fmt.Errorf("config: environment variable %s is empty", c.PlatformKeyEnv)
		}
		return crypto.ParsePrivateKey(raw)
	}
	return crypto.LoadFromKeystore(c.PlatformKeystorePath, os.Getenv("HARVESTPAY_KEYSTORE_PASSPHRASE"))
}

// createDefault creates and saves a default configuration file alongside a
// fresh platform keystore.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		NodeURL:               "http://127.0.0.1:8080",
		NetworkName:           defaultNetworkName,
		PlatformKeystorePath:  keystorePath,
		RequestTimeoutSeconds: defaultRequestTimeout,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "platform-keystore.json")
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
