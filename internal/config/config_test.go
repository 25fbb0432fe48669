package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_CONFIG_KEY", "value")
	assert.Equal(t, "value", GetEnvOrDefault("TEST_CONFIG_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("TEST_CONFIG_MISSING", "fallback"))

	// empty counts as unset
	t.Setenv("TEST_CONFIG_EMPTY", "")
	assert.Equal(t, "fallback", GetEnvOrDefault("TEST_CONFIG_EMPTY", "fallback"))
}

func TestGetEnvAsInt64(t *testing.T) {
	t.Setenv("TEST_CONFIG_INT", "1281")
	assert.Equal(t, int64(1281), GetEnvAsInt64("TEST_CONFIG_INT", 1))

	t.Setenv("TEST_CONFIG_BAD_INT", "not a number")
	assert.Equal(t, int64(7), GetEnvAsInt64("TEST_CONFIG_BAD_INT", 7))
}

func TestGetEnvAsFloat(t *testing.T) {
	t.Setenv("TEST_CONFIG_FLOAT", "0.05")
	assert.Equal(t, 0.05, GetEnvAsFloat("TEST_CONFIG_FLOAT", 1))
	assert.Equal(t, 100.0, GetEnvAsFloat("TEST_CONFIG_MISSING_FLOAT", 100))
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_CONFIG_DURATION", "30s")
	assert.Equal(t, 30*time.Second, GetEnvAsDuration("TEST_CONFIG_DURATION", time.Minute))

	// plain integers are milliseconds, matching the original tooling
	t.Setenv("TEST_CONFIG_DURATION_MS", "300000")
	assert.Equal(t, 5*time.Minute, GetEnvAsDuration("TEST_CONFIG_DURATION_MS", time.Minute))

	assert.Equal(t, time.Minute, GetEnvAsDuration("TEST_CONFIG_MISSING_DURATION", time.Minute))
}

func TestDefaultPoolsRegistry(t *testing.T) {
	pool, ok := FindPool("btc")
	assert.True(t, ok)
	assert.Equal(t, 1, pool.PoolIndex)
	assert.Equal(t, 8, pool.Decimals)

	_, ok = FindPool("UNKNOWN")
	assert.False(t, ok)

	// pool index 8 was never provisioned on chain
	for _, p := range DefaultPools {
		assert.NotEqual(t, 8, p.PoolIndex)
	}

	symbols := PoolSymbols()
	assert.Len(t, symbols, len(DefaultPools))
	assert.Contains(t, symbols, "USDT")
}
