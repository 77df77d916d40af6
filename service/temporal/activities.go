package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/transfer"
	"github.com/brojonat/tronsend/service/tron"
	"go.temporal.io/sdk/activity"
)

// TransferInput describes a transfer to run on the worker.
// It carries no credentials: the worker signs with its own key and API key.
type TransferInput struct {
	Network          string `json:"network"`
	FromAddress      string `json:"from_address,omitempty"` // defaults to the worker's signing address
	ToAddress        string `json:"to_address"`
	Amount           uint64 `json:"amount"` // in SUN
	DryRun           bool   `json:"dry_run"`
	BuildOnly        bool   `json:"build_only"`
	SkipConfirmation bool   `json:"skip_confirmation"`

	// Zero values fall back to the worker's defaults.
	MaxBroadcastAttempts int           `json:"max_broadcast_attempts,omitempty"`
	BaseBackoff          time.Duration `json:"base_backoff,omitempty"`
	MaxBackoff           time.Duration `json:"max_backoff,omitempty"`
	PollInterval         time.Duration `json:"poll_interval,omitempty"`
	MaxWait              time.Duration `json:"max_wait,omitempty"`
}

// InputFromConfig copies the non-secret parts of a transfer config.
func InputFromConfig(cfg transfer.Config) TransferInput {
	return TransferInput{
		Network:              cfg.Network,
		FromAddress:          cfg.FromAddress,
		ToAddress:            cfg.ToAddress,
		Amount:               cfg.Amount,
		DryRun:               cfg.DryRun,
		BuildOnly:            cfg.BuildOnly,
		SkipConfirmation:     cfg.SkipConfirmation,
		MaxBroadcastAttempts: cfg.MaxBroadcastAttempts,
		BaseBackoff:          cfg.BaseBackoff,
		MaxBackoff:           cfg.MaxBackoff,
		PollInterval:         cfg.PollInterval,
		MaxWait:              cfg.MaxWait,
	}
}

func (in TransferInput) config() transfer.Config {
	return transfer.Config{
		Network:              in.Network,
		FromAddress:          in.FromAddress,
		ToAddress:            in.ToAddress,
		Amount:               in.Amount,
		DryRun:               in.DryRun,
		BuildOnly:            in.BuildOnly,
		SkipConfirmation:     in.SkipConfirmation,
		MaxBroadcastAttempts: in.MaxBroadcastAttempts,
		BaseBackoff:          in.BaseBackoff,
		MaxBackoff:           in.MaxBackoff,
		PollInterval:         in.PollInterval,
		MaxWait:              in.MaxWait,
	}.WithDefaults()
}

// TransferOutput is the outcome of the ExecuteTransfer activity.
// An aborted run is an output, not an activity error, so it can still be journaled.
type TransferOutput struct {
	Result       *transfer.Result `json:"result"`
	Advisories   []string         `json:"advisories,omitempty"`
	ErrorType    string           `json:"error_type,omitempty"`
	JournalError string           `json:"journal_error,omitempty"`
}

// Aborted reports whether the run ended in the aborted state.
func (o *TransferOutput) Aborted() bool {
	return o != nil && o.Result != nil && o.Result.State == transfer.StateAborted
}

// StoreInterface defines the journal operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	RecordResult(ctx context.Context, r *transfer.Result) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	dial     transfer.DialFunc
	signer   *tron.Signer
	apiKey   string
	store    StoreInterface
	reporter transfer.Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// store, reporter and metrics may be nil.
func NewActivities(
	dial transfer.DialFunc,
	signer *tron.Signer,
	apiKey string,
	store StoreInterface,
	reporter transfer.Reporter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		dial:     dial,
		signer:   signer,
		apiKey:   apiKey,
		store:    store,
		reporter: reporter,
		metrics:  m,
		logger:   logger,
	}
}

// ExecuteTransfer runs one transfer through the state machine.
// It must not be retried by Temporal: a second attempt would build and sign a new transaction.
// Broadcast retries happen inside the run, against the same signed payload.
func (a *Activities) ExecuteTransfer(ctx context.Context, input TransferInput) (out *TransferOutput, err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("ExecuteTransfer", time.Since(start).Seconds(), err)
	}()

	info := activity.GetInfo(ctx)
	logger := a.logger.With(
		"workflow_id", info.WorkflowExecution.ID,
		"network", input.Network,
		"to", input.ToAddress,
		"amount", input.Amount,
	)

	cfg := input.config()
	cfg.Signer = a.signer
	cfg.APIKey = a.apiKey
	if cfg.FromAddress == "" && a.signer != nil {
		cfg.FromAddress = a.signer.Address().String()
	}

	logger.InfoContext(ctx, "executing transfer",
		"from", cfg.FromAddress,
		"dry_run", cfg.DryRun,
		"build_only", cfg.BuildOnly,
	)

	orch := transfer.New(cfg, a.dial,
		transfer.WithReporter(transfer.MultiReporter{a.reporter, heartbeatReporter{}}),
		transfer.WithMetrics(a.metrics),
		transfer.WithLogger(logger),
	)

	result, runErr := orch.Run(ctx)
	if result == nil {
		return nil, fmt.Errorf("transfer run failed: %w", runErr)
	}

	out = &TransferOutput{
		Result:     result,
		Advisories: result.AdvisoryMessages(),
	}
	if runErr != nil {
		out.ErrorType = ErrorType(runErr)
		logger.WarnContext(ctx, "transfer aborted",
			"run_id", result.RunID,
			"aborted_at", result.AbortedAt,
			"error_type", out.ErrorType,
			"error", runErr,
		)
		return out, nil
	}

	logger.InfoContext(ctx, "transfer finished",
		"run_id", result.RunID,
		"reference_id", result.ReferenceID,
		"settlement", result.Receipt.State,
	)
	return out, nil
}

// RecordTransfer journals the final result of a run. It is idempotent and safe to retry.
func (a *Activities) RecordTransfer(ctx context.Context, out *TransferOutput) (err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("RecordTransfer", time.Since(start).Seconds(), err)
	}()

	if out == nil || out.Result == nil {
		return fmt.Errorf("no transfer result to record")
	}
	if a.store == nil {
		a.logger.DebugContext(ctx, "no journal configured, skipping record", "run_id", out.Result.RunID)
		return nil
	}

	result := *out.Result
	result.Advisories = make([]error, 0, len(out.Advisories))
	for _, msg := range out.Advisories {
		result.Advisories = append(result.Advisories, errors.New(msg))
	}

	if err := a.store.RecordResult(ctx, &result); err != nil {
		a.logger.ErrorContext(ctx, "failed to record transfer",
			"run_id", result.RunID,
			"error", err,
		)
		return fmt.Errorf("failed to record transfer %s: %w", result.RunID, err)
	}

	a.logger.DebugContext(ctx, "recorded transfer", "run_id", result.RunID, "state", result.State)
	return nil
}

// heartbeatReporter publishes each state change as activity progress.
type heartbeatReporter struct{}

func (heartbeatReporter) Report(ctx context.Context, e transfer.Event) error {
	activity.RecordHeartbeat(ctx, string(e.State))
	return nil
}

// ErrorType names the failure class of an aborted run.
// It is used as the Temporal application error type.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transfer.ErrConfigurationIncomplete):
		return "ConfigurationIncomplete"
	case errors.Is(err, network.ErrUnknownNetwork):
		return "UnknownNetwork"
	case errors.Is(err, transfer.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, tron.ErrInvalidAddress):
		return "InvalidAddress"
	case errors.Is(err, tron.ErrTransactionRejected):
		return "TransactionRejected"
	case errors.Is(err, tron.ErrNoSigningKey):
		return "NoSigningKey"
	case errors.Is(err, tron.ErrSigning):
		return "Signing"
	case errors.Is(err, tron.ErrBroadcast):
		return "Broadcast"
	case errors.Is(err, tron.ErrConnection):
		return "Connection"
	case errors.Is(err, tron.ErrRPC):
		return "RPC"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	default:
		return "Unknown"
	}
}
