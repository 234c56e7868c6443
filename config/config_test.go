package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"harvestpay/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvestpay.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "harvestpay-local", cfg.NetworkName)
	require.NotEmpty(t, cfg.NodeURL)
	require.FileExists(t, path)
	require.FileExists(t, cfg.PlatformKeystorePath)

	// The generated keystore decrypts with the empty default passphrase.
	key, err := crypto.LoadFromKeystore(cfg.PlatformKeystorePath, "")
	require.NoError(t, err)
	require.NotNil(t, key)
}

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvestpay.toml")
	contents := `
NodeURL = "http://node.internal:8080"
NodeAuthToken = "secret-token"
NetworkName = "harvestpay-testnet"
PlatformKeyEnv = "TEST_PLATFORM_KEY"
RequestTimeoutSeconds = 5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://node.internal:8080", cfg.NodeURL)
	require.Equal(t, "harvestpay-testnet", cfg.NetworkName)
	require.Equal(t, 5, cfg.RequestTimeoutSeconds)
}

func TestLoadRequiresNodeURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvestpay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`PlatformKeyEnv = "X"`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "NodeURL is required")
}

func TestLoadRequiresKeySource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvestpay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`NodeURL = "http://x"`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "PlatformKeystorePath or PlatformKeyEnv")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvestpay.toml")
	contents := `
NodeURL = "http://node.internal:8080"
PlatformKeyEnv = "TEST_PLATFORM_KEY"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv("HARVESTPAY_NODE_URL", "http://override:9090")
	t.Setenv("HARVESTPAY_NETWORK", "harvestpay-mainnet")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://override:9090", cfg.NodeURL)
	require.Equal(t, "harvestpay-mainnet", cfg.NetworkName)
}

func TestPlatformKeyFromEnv(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	t.Setenv("TEST_PLATFORM_KEY", key.Hex())

	cfg := &Config{PlatformKeyEnv: "TEST_PLATFORM_KEY"}
	loaded, err := cfg.PlatformKey()
	require.NoError(t, err)
	require.True(t, key.Address().Equal(loaded.Address()))

	t.Setenv("TEST_PLATFORM_KEY", "")
	_, err = cfg.PlatformKey()
	require.Error(t, err)
}
