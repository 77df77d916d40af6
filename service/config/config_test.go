package config

import (
	"testing"
	"time"

	"github.com/brojonat/tronsend/service/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envKeys lists every variable Load reads.
var envKeys = []string{
	"LOG_LEVEL", "METRICS_ADDR", "DATABASE_URL", "NATS_URL",
	"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "RPC_RATE_LIMIT", "TRON_RPC_URL",
	"TRON_NETWORK", "TRON_PRIVATE_KEY", "TRON_FROM_ADDRESS", "TRON_TO_ADDRESS", "TRONGRID_API_KEY",
	"TRANSFER_AMOUNT", "DRY_RUN", "ACTUALLY_BROADCAST", "SKIP_CONFIRMATION",
	"MAX_BROADCAST_ATTEMPTS", "BROADCAST_BACKOFF", "BROADCAST_MAX_BACKOFF",
	"POLL_INTERVAL", "CONFIRMATION_MAX_WAIT",
}

// clearEnv blanks every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "tronsend-transfers", cfg.TemporalTaskQueue)
	assert.Zero(t, cfg.RPCRateLimit)
	assert.Empty(t, cfg.RPCURL)

	assert.Equal(t, "nile", cfg.Transfer.Network)
	assert.True(t, cfg.Transfer.DryRun, "dry run must be the default")
	assert.False(t, cfg.Transfer.SkipConfirmation)
	assert.Equal(t, transfer.DefaultMaxBroadcastAttempts, cfg.Transfer.MaxBroadcastAttempts)
	assert.Equal(t, transfer.DefaultBaseBackoff, cfg.Transfer.BaseBackoff)
	assert.Equal(t, transfer.DefaultMaxBackoff, cfg.Transfer.MaxBackoff)
	assert.Equal(t, transfer.DefaultPollInterval, cfg.Transfer.PollInterval)
	assert.Equal(t, transfer.DefaultMaxWait, cfg.Transfer.MaxWait)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://localhost/tronsend")
	t.Setenv("NATS_URL", "nats://nats.example.com:4222")
	t.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	t.Setenv("RPC_RATE_LIMIT", "12.5")
	t.Setenv("TRON_NETWORK", "mainnet")
	t.Setenv("TRON_PRIVATE_KEY", "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	t.Setenv("TRON_FROM_ADDRESS", "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8")
	t.Setenv("TRON_TO_ADDRESS", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	t.Setenv("TRONGRID_API_KEY", "grid-key")
	t.Setenv("TRANSFER_AMOUNT", "1500000")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("MAX_BROADCAST_ATTEMPTS", "5")
	t.Setenv("BROADCAST_BACKOFF", "500ms")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("CONFIRMATION_MAX_WAIT", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/tronsend", cfg.DatabaseURL)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, 12.5, cfg.RPCRateLimit)

	tc := cfg.Transfer
	assert.Equal(t, "mainnet", tc.Network)
	assert.Equal(t, "grid-key", tc.APIKey)
	assert.Equal(t, uint64(1500000), tc.Amount)
	assert.False(t, tc.DryRun)
	assert.Equal(t, 5, tc.MaxBroadcastAttempts)
	assert.Equal(t, 500*time.Millisecond, tc.BaseBackoff)
	assert.Equal(t, 2*time.Second, tc.PollInterval)
	assert.Equal(t, 2*time.Minute, tc.MaxWait)
	assert.NoError(t, tc.Validate())
}

func TestLoad_ActuallyBroadcastOverridesDryRun(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACTUALLY_BROADCAST", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Transfer.DryRun)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"TRANSFER_AMOUNT", "-5", "invalid amount"},
		{"TRANSFER_AMOUNT", "1.5", "invalid amount"},
		{"DRY_RUN", "maybe", "invalid boolean"},
		{"MAX_BROADCAST_ATTEMPTS", "three", "invalid integer"},
		{"POLL_INTERVAL", "invalid", "invalid duration"},
		{"RPC_RATE_LIMIT", "fast", "invalid number"},
		{"TRON_NETWORK", "devnet", "unknown network"},
		{"MAX_BROADCAST_ATTEMPTS", "0", "MaxBroadcastAttempts must be at least 1"},
		{"BROADCAST_BACKOFF", "1m", "cannot be less than BaseBackoff"},
		{"POLL_INTERVAL", "10ms", "PollInterval must be at least 100ms"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSFER_AMOUNT", "lots")
	t.Setenv("POLL_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSFER_AMOUNT")
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}

func TestValidate_MissingTemporalSettings(t *testing.T) {
	cfg := &Config{
		Transfer: transfer.Config{Network: "shasta"}.WithDefaults(),
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TemporalHost is required")
	assert.Contains(t, err.Error(), "TemporalTaskQueue is required")
}

func TestMustLoad_Panics(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRON_NETWORK", "nowhere")

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	clearEnv(t)

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}
