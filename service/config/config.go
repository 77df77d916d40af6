package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/transfer"
)

// Config holds all application configuration loaded from environment variables.
// Transfer settings are only checked for completeness when a run starts;
// Load fails fast on values that are present but malformed.
type Config struct {
	LogLevel    string
	MetricsAddr string

	// Database configuration. Empty disables the run journal.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// RPCURL overrides the network's node endpoints, e.g. for a private full node.
	RPCURL string

	// RPCRateLimit caps requests per second to the node. 0 disables limiting.
	RPCRateLimit float64

	Transfer transfer.Config
}

// Load reads configuration from environment variables and validates all values.
// Returns an error if any configuration is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "tronsend-transfers")

	cfg.RPCURL = os.Getenv("TRON_RPC_URL")

	rateLimit, err := parseFloat("RPC_RATE_LIMIT", 0)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.RPCRateLimit = rateLimit

	t := &cfg.Transfer
	t.Network = getEnvOrDefault("TRON_NETWORK", network.Nile.String())
	t.SigningKey = os.Getenv("TRON_PRIVATE_KEY")
	t.FromAddress = os.Getenv("TRON_FROM_ADDRESS")
	t.ToAddress = os.Getenv("TRON_TO_ADDRESS")
	t.APIKey = os.Getenv("TRONGRID_API_KEY")

	if t.Amount, err = parseUint("TRANSFER_AMOUNT", 0); err != nil {
		errs = append(errs, err)
	}

	// Dry run is the default; a real broadcast must be asked for.
	if t.DryRun, err = parseBool("DRY_RUN", true); err != nil {
		errs = append(errs, err)
	}
	if os.Getenv("ACTUALLY_BROADCAST") != "" {
		broadcast, err := parseBool("ACTUALLY_BROADCAST", false)
		if err != nil {
			errs = append(errs, err)
		}
		t.DryRun = !broadcast
	}
	if t.SkipConfirmation, err = parseBool("SKIP_CONFIRMATION", false); err != nil {
		errs = append(errs, err)
	}

	if t.MaxBroadcastAttempts, err = parseInt("MAX_BROADCAST_ATTEMPTS", transfer.DefaultMaxBroadcastAttempts); err != nil {
		errs = append(errs, err)
	}
	if t.BaseBackoff, err = parseDuration("BROADCAST_BACKOFF", transfer.DefaultBaseBackoff.String()); err != nil {
		errs = append(errs, err)
	}
	if t.MaxBackoff, err = parseDuration("BROADCAST_MAX_BACKOFF", transfer.DefaultMaxBackoff.String()); err != nil {
		errs = append(errs, err)
	}
	if t.PollInterval, err = parseDuration("POLL_INTERVAL", transfer.DefaultPollInterval.String()); err != nil {
		errs = append(errs, err)
	}
	if t.MaxWait, err = parseDuration("CONFIRMATION_MAX_WAIT", transfer.DefaultMaxWait.String()); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks the ambient settings and the transfer policy.
// Transfer completeness (key, addresses, amount) is checked by transfer.Config.Validate.
func (c *Config) Validate() error {
	var errs []error

	if _, err := network.ParseName(c.Transfer.Network); err != nil {
		errs = append(errs, fmt.Errorf("TRON_NETWORK: %w", err))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit cannot be negative"))
	}

	if c.Transfer.MaxBroadcastAttempts < 1 {
		errs = append(errs, fmt.Errorf("MaxBroadcastAttempts must be at least 1"))
	}

	if c.Transfer.MaxBackoff < c.Transfer.BaseBackoff {
		errs = append(errs, fmt.Errorf("MaxBackoff (%v) cannot be less than BaseBackoff (%v)",
			c.Transfer.MaxBackoff, c.Transfer.BaseBackoff))
	}

	if c.Transfer.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 100ms"))
	}

	if c.Transfer.MaxWait < 0 {
		errs = append(errs, fmt.Errorf("MaxWait cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseUint parses an unsigned amount from an environment variable or uses a default.
func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid amount %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
