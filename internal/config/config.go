package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the reward sync service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Chain configuration
	RPCURL          string
	SignerKey       string
	RewardProgramID string
	RewardRegistry  string

	// Scheduling configuration
	SyncCron     string
	HealthCron   string
	RunOnStartup bool

	// Management API configuration
	APIEnabled bool
	APIPort    string

	// Notification configuration
	WebhookURL string

	// Run configuration
	BatchSize          int
	FetchLimit         int
	MinEligibleSeconds int64
	RewardCooldown     time.Duration
	BatchDelay         time.Duration
	TxTimeout          time.Duration
	ReferralRate       uint64
	HistoryLimit       int

	// Logging configuration
	LogLevel string
}

// MaxBatchSize bounds how many accounts go into one on-chain transaction.
const MaxBatchSize = 25

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", ""),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", ""),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),
		RPCURL:          getEnv("RPC_URL", ""),
		SignerKey:       getEnv("SIGNER_KEY", ""),
		RewardProgramID: getEnv("REWARD_PROGRAM_ID", ""),
		RewardRegistry:  getEnv("REWARD_REGISTRY", ""),
		SyncCron:        getEnv("SYNC_CRON", "0 0 3 * * *"),
		HealthCron:      getEnv("HEALTH_CRON", "0 0 */6 * * *"),
		APIPort:         getEnv("API_PORT", "8090"),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var err error
	cfg.RunOnStartup, err = parseBoolEnv("RUN_ON_STARTUP", false)
	if err != nil {
		return cfg, fmt.Errorf("invalid RUN_ON_STARTUP: %w", err)
	}

	cfg.APIEnabled, err = parseBoolEnv("API_ENABLED", true)
	if err != nil {
		return cfg, fmt.Errorf("invalid API_ENABLED: %w", err)
	}

	cfg.BatchSize, err = parseIntEnv("BATCH_SIZE", 10)
	if err != nil {
		return cfg, fmt.Errorf("invalid BATCH_SIZE: %w", err)
	}

	cfg.FetchLimit, err = parseIntEnv("FETCH_LIMIT", 100)
	if err != nil {
		return cfg, fmt.Errorf("invalid FETCH_LIMIT: %w", err)
	}

	minEligible, err := parseIntEnv("MIN_ELIGIBLE_SECONDS", 18000)
	if err != nil {
		return cfg, fmt.Errorf("invalid MIN_ELIGIBLE_SECONDS: %w", err)
	}
	cfg.MinEligibleSeconds = int64(minEligible)

	cfg.RewardCooldown, err = parseDurationEnv("REWARD_COOLDOWN", 24*time.Hour)
	if err != nil {
		return cfg, fmt.Errorf("invalid REWARD_COOLDOWN: %w", err)
	}

	cfg.BatchDelay, err = parseDurationEnv("BATCH_DELAY", 2*time.Second)
	if err != nil {
		return cfg, fmt.Errorf("invalid BATCH_DELAY: %w", err)
	}

	cfg.TxTimeout, err = parseDurationEnv("TX_TIMEOUT", 90*time.Second)
	if err != nil {
		return cfg, fmt.Errorf("invalid TX_TIMEOUT: %w", err)
	}

	referralRate, err := parseIntEnv("REFERRAL_RATE", 500)
	if err != nil {
		return cfg, fmt.Errorf("invalid REFERRAL_RATE: %w", err)
	}
	cfg.ReferralRate = uint64(referralRate)

	cfg.HistoryLimit, err = parseIntEnv("HISTORY_LIMIT", 20)
	if err != nil {
		return cfg, fmt.Errorf("invalid HISTORY_LIMIT: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid.
//
// Chain credentials (SIGNER_KEY, REWARD_PROGRAM_ID) are deliberately not
// required here: a missing signer degrades the service instead of preventing
// startup, and is surfaced through the health endpoint.
func (c Config) validate() error {
	if c.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.DBUser == "" {
		return fmt.Errorf("DB_USER is required")
	}

	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("BATCH_SIZE must be between 1 and %d", MaxBatchSize)
	}

	if c.FetchLimit < c.BatchSize {
		return fmt.Errorf("FETCH_LIMIT must be at least BATCH_SIZE")
	}

	if c.MinEligibleSeconds < 0 {
		return fmt.Errorf("MIN_ELIGIBLE_SECONDS must not be negative")
	}

	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be at least 1")
	}

	if c.SyncCron == "" || c.HealthCron == "" {
		return fmt.Errorf("SYNC_CRON and HEALTH_CRON are required")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// ChainConfigured reports whether the chain-side credentials are present.
func (c Config) ChainConfigured() bool {
	return c.RPCURL != "" && c.SignerKey != "" && c.RewardProgramID != ""
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseBoolEnv parses a boolean environment variable with a default value
func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(str)
}

// parseDurationEnv parses a duration environment variable with a default value
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(str)
}
