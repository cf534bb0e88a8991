package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalValidYAML = `
system:
  mode: paper
  primary_symbol: BTCUSDT
protection:
  enabled: true
  require_sl: true
  attach_timeout_ms: 5000
universe:
  min_active_symbols: 1
  max_active_symbols: 5
  fallback_symbols: ["BTCUSDT"]
exchange:
  platform: mock
`

func TestLoad_ValidConfigParsesAndValidates(t *testing.T) {
	path := writeConfig(t, minimalValidYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "paper", cfg.System.Mode)
	require.Equal(t, "BTCUSDT", cfg.System.PrimarySymbol)
	require.True(t, cfg.Protection.RequireSL)
}

func TestLoad_MissingFallbackSymbolsFailsValidation(t *testing.T) {
	path := writeConfig(t, `
universe:
  min_active_symbols: 1
  max_active_symbols: 5
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "fallback_symbols")
}

func TestLoad_UniverseMinGreaterThanMaxFailsValidation(t *testing.T) {
	path := writeConfig(t, `
universe:
  min_active_symbols: 10
  max_active_symbols: 5
  fallback_symbols: ["BTCUSDT"]
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "min_active_symbols")
}

func TestLoad_ProtectionEnabledWithoutRequireSLFailsValidation(t *testing.T) {
	path := writeConfig(t, `
universe:
  min_active_symbols: 1
  max_active_symbols: 5
  fallback_symbols: ["BTCUSDT"]
protection:
  enabled: true
  require_sl: false
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "protection.enabled")
}

func TestLoad_DemoAndTestnetBothTrueFailsValidation(t *testing.T) {
	path := writeConfig(t, `
universe:
  min_active_symbols: 1
  max_active_symbols: 5
  fallback_symbols: ["BTCUSDT"]
exchange:
  demo: true
  testnet: true
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "demo")
}

func TestLoad_NegativeMinOrderIntervalFailsValidation(t *testing.T) {
	path := writeConfig(t, `
universe:
  min_active_symbols: 1
  max_active_symbols: 5
  fallback_symbols: ["BTCUSDT"]
execution:
  min_order_interval_ms: -1
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "min_order_interval_ms")
}

func TestResolveCredentials_PrefersDemoOverTestnetOverMainnet(t *testing.T) {
	t.Setenv("BYBIT_DEMO_API_KEY", "demo-key")
	t.Setenv("BYBIT_DEMO_API_SECRET", "demo-secret")
	t.Setenv("BYBIT_TESTNET_API_KEY", "testnet-key")
	t.Setenv("BYBIT_TESTNET_API_SECRET", "testnet-secret")

	creds, err := ResolveCredentials("bybit", true, true)
	require.NoError(t, err)
	require.Equal(t, "demo-key", creds.APIKey)
	require.Equal(t, "DEMO", creds.Source)
}

func TestResolveCredentials_FallsBackToGeneric(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "generic-key")
	t.Setenv("BINANCE_API_SECRET", "generic-secret")

	creds, err := ResolveCredentials("binance", false, false)
	require.NoError(t, err)
	require.Equal(t, "generic-key", creds.APIKey)
	require.Equal(t, "GENERIC", creds.Source)
}

func TestResolveCredentials_MissingIsError(t *testing.T) {
	_, err := ResolveCredentials("nonexistent-venue", false, false)
	require.Error(t, err)
}
