package config

import (
	"fmt"
	"os"
	"strings"
)

// Credentials is a resolved API key/secret pair for one venue.
type Credentials struct {
	APIKey    string
	APISecret string
	Source    string // which env-var tier resolved it, for startup logging
}

// ResolveCredentials resolves API credentials for venue (e.g. "BYBIT",
// "BINANCE") following spec.md §6's documented priority: demo beats
// testnet beats mainnet beats the generic fallback. Replay mode has no
// adapter and never calls this; every other mode treats a miss as a hard
// startup failure, which the caller (cmd/tradecore) turns into exit 1.
func ResolveCredentials(venue string, demo, testnet bool) (Credentials, error) {
	venue = strings.ToUpper(venue)

	tiers := []struct {
		suffix string
		active bool
	}{
		{"DEMO", demo},
		{"TESTNET", testnet},
		{"MAINNET", !demo && !testnet},
	}

	for _, tier := range tiers {
		if !tier.active {
			continue
		}
		key := os.Getenv(venue + "_" + tier.suffix + "_API_KEY")
		secret := os.Getenv(venue + "_" + tier.suffix + "_API_SECRET")
		if key != "" && secret != "" {
			return Credentials{APIKey: key, APISecret: secret, Source: tier.suffix}, nil
		}
	}

	// Generic fallback, tried regardless of mode.
	if key, secret := os.Getenv(venue+"_API_KEY"), os.Getenv(venue+"_API_SECRET"); key != "" && secret != "" {
		return Credentials{APIKey: key, APISecret: secret, Source: "GENERIC"}, nil
	}

	return Credentials{}, fmt.Errorf("config: no credentials found for venue %s (checked demo=%v testnet=%v)", venue, demo, testnet)
}
