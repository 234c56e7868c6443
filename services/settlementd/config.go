package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"harvestpay/crypto"
)

// APIKeyConfig describes a single API key + secret pair accepted by the
// settlement daemon.
type APIKeyConfig struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Config captures runtime configuration for the settlement daemon.
type Config struct {
	ListenAddress        string
	NodeURL              string
	NodeAuthToken        string
	NetworkName          string
	Environment          string
	RequestTimeout       time.Duration
	AllowedTimestampSkew time.Duration
	NonceTTL             time.Duration
	APIKeys              []APIKeyConfig

	platformKeyHex string
	keystorePath   string
}

// LoadConfigFromEnv builds a configuration using environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:        getenvDefault("SETTLEMENTD_LISTEN", ":8090"),
		NodeURL:              os.Getenv("SETTLEMENTD_NODE_URL"),
		NodeAuthToken:        os.Getenv("SETTLEMENTD_NODE_TOKEN"),
		NetworkName:          getenvDefault("SETTLEMENTD_NETWORK", "harvestpay-local"),
		Environment:          getenvDefault("SETTLEMENTD_ENV", "dev"),
		RequestTimeout:       10 * time.Second,
		AllowedTimestampSkew: 2 * time.Minute,
		platformKeyHex:       os.Getenv("SETTLEMENTD_PLATFORM_KEY"),
		keystorePath:         os.Getenv("SETTLEMENTD_KEYSTORE_PATH"),
	}

	if cfg.NodeURL == "" {
		return Config{}, errors.New("SETTLEMENTD_NODE_URL is required")
	}
	if cfg.platformKeyHex == "" && cfg.keystorePath == "" {
		return Config{}, errors.New("one of SETTLEMENTD_PLATFORM_KEY or SETTLEMENTD_KEYSTORE_PATH is required")
	}

	if raw := strings.TrimSpace(os.Getenv("SETTLEMENTD_REQUEST_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SETTLEMENTD_REQUEST_TIMEOUT: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("SETTLEMENTD_REQUEST_TIMEOUT must be positive")
		}
		cfg.RequestTimeout = dur
	}

	if raw := strings.TrimSpace(os.Getenv("SETTLEMENTD_TIMESTAMP_SKEW")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SETTLEMENTD_TIMESTAMP_SKEW: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("SETTLEMENTD_TIMESTAMP_SKEW must be positive")
		}
		cfg.AllowedTimestampSkew = dur
	}

	cfg.NonceTTL = 2 * cfg.AllowedTimestampSkew
	if raw := strings.TrimSpace(os.Getenv("SETTLEMENTD_NONCE_TTL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SETTLEMENTD_NONCE_TTL: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("SETTLEMENTD_NONCE_TTL must be positive")
		}
		cfg.NonceTTL = dur
	}
	if cfg.NonceTTL < cfg.AllowedTimestampSkew {
		cfg.NonceTTL = cfg.AllowedTimestampSkew
	}

	keys, err := parseAPIKeys(os.Getenv("SETTLEMENTD_API_KEYS"))
	if err != nil {
		return Config{}, err
	}
	cfg.APIKeys = keys

	return cfg, nil
}

// PlatformKey resolves the platform signing key: directly from the
// environment when SETTLEMENTD_PLATFORM_KEY is set, otherwise from the
// configured keystore. The passphrase is read from
// HARVESTPAY_KEYSTORE_PASSPHRASE.
func (c Config) PlatformKey() (*crypto.PrivateKey, error) {
	if c.platformKeyHex != "" {
		return crypto.ParsePrivateKey(c.platformKeyHex)
	}
	return crypto.LoadFromKeystore(c.keystorePath, os.Getenv("HARVESTPAY_KEYSTORE_PASSPHRASE"))
}

func parseAPIKeys(raw string) ([]APIKeyConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("SETTLEMENTD_API_KEYS is required")
	}
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("parse SETTLEMENTD_API_KEYS: %w", err)
	}
	if len(keys) == 0 {
		return nil, errors.New("SETTLEMENTD_API_KEYS must list at least one key")
	}
	for i, key := range keys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return nil, fmt.Errorf("SETTLEMENTD_API_KEYS entry %d is missing key or secret", i)
		}
	}
	return keys, nil
}

func getenvDefault(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}
