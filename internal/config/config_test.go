package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	keys := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"RPC_URL", "SIGNER_KEY", "REWARD_PROGRAM_ID", "REWARD_REGISTRY",
		"SYNC_CRON", "HEALTH_CRON", "RUN_ON_STARTUP", "API_ENABLED", "API_PORT",
		"WEBHOOK_URL", "BATCH_SIZE", "FETCH_LIMIT", "MIN_ELIGIBLE_SECONDS",
		"REWARD_COOLDOWN", "BATCH_DELAY", "TX_TIMEOUT", "REFERRAL_RATE",
		"HISTORY_LIMIT", "LOG_LEVEL",
	}

	// Save original env vars
	originalVars := make(map[string]string, len(keys))
	for _, key := range keys {
		originalVars[key] = os.Getenv(key)
	}

	// Restore env vars after test
	defer func() {
		for key, value := range originalVars {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearAll := func() {
		for _, key := range keys {
			os.Unsetenv(key)
		}
	}

	setRequired := func() {
		os.Setenv("DB_USER", "rewardsync")
		os.Setenv("DB_NAME", "engagement")
	}

	t.Run("successful load with all vars", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("DB_HOST", "db.internal")
		os.Setenv("DB_PORT", "5433")
		os.Setenv("RPC_URL", "https://api.mainnet-beta.solana.com")
		os.Setenv("SIGNER_KEY", "base58key")
		os.Setenv("REWARD_PROGRAM_ID", "program111")
		os.Setenv("SYNC_CRON", "0 30 2 * * *")
		os.Setenv("BATCH_SIZE", "5")
		os.Setenv("FETCH_LIMIT", "50")
		os.Setenv("MIN_ELIGIBLE_SECONDS", "7200")
		os.Setenv("REWARD_COOLDOWN", "12h")
		os.Setenv("BATCH_DELAY", "500ms")
		os.Setenv("TX_TIMEOUT", "2m")
		os.Setenv("RUN_ON_STARTUP", "true")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.DBHost)
		assert.Equal(t, "5433", cfg.DBPort)
		assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPCURL)
		assert.Equal(t, "0 30 2 * * *", cfg.SyncCron)
		assert.Equal(t, 5, cfg.BatchSize)
		assert.Equal(t, 50, cfg.FetchLimit)
		assert.Equal(t, int64(7200), cfg.MinEligibleSeconds)
		assert.Equal(t, 12*time.Hour, cfg.RewardCooldown)
		assert.Equal(t, 500*time.Millisecond, cfg.BatchDelay)
		assert.Equal(t, 2*time.Minute, cfg.TxTimeout)
		assert.True(t, cfg.RunOnStartup)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("missing database configuration", func(t *testing.T) {
		clearAll()

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "DB_NAME is required")
	})

	t.Run("missing chain credentials is not fatal", func(t *testing.T) {
		clearAll()
		setRequired()

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.ChainConfigured())
	})

	t.Run("batch size out of bounds", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("BATCH_SIZE", "100")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "BATCH_SIZE must be between")
	})

	t.Run("fetch limit below batch size", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("BATCH_SIZE", "10")
		os.Setenv("FETCH_LIMIT", "5")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "FETCH_LIMIT must be at least BATCH_SIZE")
	})

	t.Run("invalid duration", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("BATCH_DELAY", "soon")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid BATCH_DELAY")
	})

	t.Run("invalid log level", func(t *testing.T) {
		clearAll()
		setRequired()
		os.Setenv("LOG_LEVEL", "verbose")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid LOG_LEVEL")
	})

	t.Run("defaults are applied", func(t *testing.T) {
		clearAll()
		setRequired()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "0 0 3 * * *", cfg.SyncCron)
		assert.Equal(t, "0 0 */6 * * *", cfg.HealthCron)
		assert.Equal(t, 10, cfg.BatchSize)
		assert.Equal(t, 100, cfg.FetchLimit)
		assert.Equal(t, int64(18000), cfg.MinEligibleSeconds)
		assert.Equal(t, 24*time.Hour, cfg.RewardCooldown)
		assert.Equal(t, 2*time.Second, cfg.BatchDelay)
		assert.Equal(t, 90*time.Second, cfg.TxTimeout)
		assert.Equal(t, uint64(500), cfg.ReferralRate)
		assert.Equal(t, 20, cfg.HistoryLimit)
		assert.True(t, cfg.APIEnabled)
		assert.False(t, cfg.RunOnStartup)
		assert.Equal(t, "info", cfg.LogLevel)
	})
}
