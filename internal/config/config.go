// Package config provides configuration loading and management for the application.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// JSON-RPC endpoint of the NBC chain
	RPCURL string

	// Chain ID of the NBC chain
	ChainID int64

	// Hex-encoded private key of the contract owner wallet; empty means read-only
	PrivateKey string

	// Address of the multi-pool staking contract
	StakingContract string

	// Expected total staked amount in NBC wei, as a decimal string
	TotalStakedNBC string

	// Target APR in percent, e.g. 100 = 100%
	TargetAPR float64

	// Rewards distribution window in seconds, normally one year
	RewardsDuration int64

	// Minimum relative reward-rate deviation before a correction is proposed
	MinChangeThreshold float64

	// Implied APR above which the sanity guard trips
	MaxSaneAPR float64

	// Price API settings
	NBCEXBaseURL    string
	NBCEXAccessKey  string
	GateIOBaseURL   string
	OKXBaseURL      string
	BinanceBaseURL  string
	CoinGeckoBaseURL string
	PriceTimeout    time.Duration

	// Daemon settings
	UpdateInterval time.Duration
	MetricsPort    string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string
}

// Load creates a new Config from environment variables. A .env file in the
// working directory is merged in first, matching the behaviour of the original
// operational tooling.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded environment from .env")
	}

	return Config{
		RPCURL:             GetEnvOrDefault("RPC_URL", "https://rpc.nbcex.com"),
		ChainID:            GetEnvAsInt64("CHAIN_ID", 1281),
		PrivateKey:         os.Getenv("PRIVATE_KEY"),
		StakingContract:    GetEnvOrDefault("STAKING_CONTRACT_ADDRESS", "0x930BEcf16Ab2b20CcEe9f327f61cCB5B9352c789"),
		TotalStakedNBC:     GetEnvOrDefault("TOTAL_STAKED_NBC", "1000000000000000000000000"),
		TargetAPR:          GetEnvAsFloat("TARGET_APR", 100),
		RewardsDuration:    GetEnvAsInt64("REWARDS_DURATION", 31536000),
		MinChangeThreshold: GetEnvAsFloat("MIN_CHANGE_THRESHOLD", 0.05),
		MaxSaneAPR:         GetEnvAsFloat("MAX_SANE_APR", 10000),
		NBCEXBaseURL:       GetEnvOrDefault("NBCEX_API_BASE", "https://www.nbcex.com/v1/rest/api/market/ticker"),
		NBCEXAccessKey:     os.Getenv("NBCEX_ACCESS_KEY"),
		GateIOBaseURL:      GetEnvOrDefault("GATEIO_API_BASE", "https://api.gateio.ws/api/v4/spot/tickers"),
		OKXBaseURL:         GetEnvOrDefault("OKX_API_BASE", "https://www.okx.com/api/v5/market/ticker"),
		BinanceBaseURL:     GetEnvOrDefault("BINANCE_API_BASE", "https://api.binance.com/api/v3/ticker/price"),
		CoinGeckoBaseURL:   GetEnvOrDefault("COINGECKO_API_BASE", "https://api.coingecko.com/api/v3/simple/price"),
		PriceTimeout:       GetEnvAsDuration("PRICE_API_TIMEOUT", 10*time.Second),
		UpdateInterval:     GetEnvAsDuration("UPDATE_INTERVAL", 5*time.Minute),
		MetricsPort:        GetEnvOrDefault("METRICS_PORT", "9090"),
		OtelEndpoint:       GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt64 retrieves an environment variable as an int64 with a default value
func GetEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
		logrus.Warnf("Invalid integer in %s, using default: %d", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value.
// Plain integers are interpreted as milliseconds for compatibility with the
// original adjuster's UPDATE_INTERVAL setting.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}
