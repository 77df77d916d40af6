package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Ledger is the set of remote operations a transfer run performs.
// *tron.Client satisfies it.
type Ledger interface {
	GetAccount(ctx context.Context, address string) (*tron.Account, error)
	BuildTransfer(ctx context.Context, from, to string, amount uint64) (*tron.UnsignedTransaction, error)
	Sign(ctx context.Context, tx *tron.UnsignedTransaction) (*tron.SignedTransaction, error)
	Broadcast(ctx context.Context, signed *tron.SignedTransaction) (string, error)
	GetTransactionStatus(ctx context.Context, referenceID string) (tron.Receipt, error)
}

// DialFunc opens a ledger session for a resolved network profile.
type DialFunc func(ctx context.Context, profile network.Profile, signer *tron.Signer) (Ledger, error)

// Result summarizes one run. It is returned for aborted runs too, with State
// set to StateAborted and AbortedAt naming the last state reached.
type Result struct {
	RunID             string       `json:"run_id"`
	Network           string       `json:"network"`
	From              string       `json:"from"`
	To                string       `json:"to"`
	Amount            uint64       `json:"amount"`
	DryRun            bool         `json:"dry_run"`
	State             State        `json:"state"`
	AbortedAt         State        `json:"aborted_at,omitempty"`
	ReferenceID       string       `json:"reference_id,omitempty"`
	Receipt           tron.Receipt `json:"receipt"`
	SenderBalance     uint64       `json:"sender_balance"`
	ReceiverBalance   *uint64      `json:"receiver_balance,omitempty"`
	BroadcastAttempts int          `json:"broadcast_attempts"`
	Advisories        []error      `json:"-"`
	Error             string       `json:"error,omitempty"`
	StartedAt         time.Time    `json:"started_at"`
	FinishedAt        time.Time    `json:"finished_at"`
}

// AdvisoryMessages returns the advisories as strings.
func (r *Result) AdvisoryMessages() []string {
	out := make([]string, 0, len(r.Advisories))
	for _, a := range r.Advisories {
		out = append(out, a.Error())
	}
	return out
}

// Orchestrator drives a single transfer through its lifecycle.
type Orchestrator struct {
	cfg      Config
	dial     DialFunc
	reporter Reporter
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReporter sets where transition events go.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock sets the clock used for backoff and confirmation waits.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New creates an orchestrator. Zero policy values in cfg are replaced by defaults.
func New(cfg Config, dial DialFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg.WithDefaults(),
		dial:   dial,
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reporter == nil {
		o.reporter = LogReporter{Logger: o.logger}
	}
	return o
}

// run holds the mutable state of one Run call.
type run struct {
	o      *Orchestrator
	state  State
	result *Result
	logger *slog.Logger
}

// Run executes the transfer: check balance, build, sign, broadcast, confirm.
// The returned Result is never nil. A non-nil error means the run aborted;
// the error keeps its category so callers can use errors.Is.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	cfg := o.cfg
	runID := uuid.NewString()
	r := &run{
		o:     o,
		state: StateInit,
		result: &Result{
			RunID:     runID,
			Network:   cfg.Network,
			From:      cfg.FromAddress,
			To:        cfg.ToAddress,
			Amount:    cfg.Amount,
			DryRun:    cfg.DryRun,
			State:     StateInit,
			StartedAt: o.clock.Now(),
		},
		logger: o.logger.With("run_id", runID),
	}
	r.emit(ctx, "")

	if err := cfg.Validate(); err != nil {
		return r.abort(ctx, err)
	}
	profile, err := network.Resolve(cfg.Network)
	if err != nil {
		return r.abort(ctx, err)
	}
	profile = profile.WithAPIKey(cfg.APIKey)
	r.result.Network = profile.Name.String()
	r.logger = r.logger.With("network", r.result.Network)

	signer := cfg.Signer
	if signer == nil && !cfg.BuildOnly {
		signer, err = tron.NewSigner(cfg.SigningKey)
		if err != nil {
			return r.abort(ctx, err)
		}
	}

	ledger, err := o.dial(ctx, profile, signer)
	if err != nil {
		if !errors.Is(err, tron.ErrConnection) {
			err = fmt.Errorf("%w: %w", tron.ErrConnection, err)
		}
		return r.abort(ctx, err)
	}

	// Balance checks.
	sender, err := ledger.GetAccount(ctx, cfg.FromAddress)
	switch {
	case errors.Is(err, tron.ErrAccountNotFound):
		r.advise(ctx, fmt.Errorf("sender account not activated: %w", err))
		sender = &tron.Account{Balance: 0}
	case err != nil:
		return r.abort(ctx, err)
	}
	r.result.SenderBalance = sender.Balance
	if sender.Balance < cfg.Amount {
		return r.abort(ctx, insufficientFunds(cfg.FromAddress, sender.Balance, cfg.Amount))
	}

	receiver, err := ledger.GetAccount(ctx, cfg.ToAddress)
	switch {
	case errors.Is(err, tron.ErrAccountNotFound):
		zero := uint64(0)
		r.result.ReceiverBalance = &zero
		r.advise(ctx, fmt.Errorf("receiver account not yet activated, the transfer will create it: %w", err))
	case err != nil:
		r.advise(ctx, fmt.Errorf("receiver balance unavailable: %w", err))
	default:
		balance := receiver.Balance
		r.result.ReceiverBalance = &balance
	}
	if err := r.transition(ctx, StateBalanceChecked, fmt.Sprintf("sender balance %d SUN", sender.Balance)); err != nil {
		return r.abort(ctx, err)
	}

	// Build.
	tx, err := ledger.BuildTransfer(ctx, cfg.FromAddress, cfg.ToAddress, cfg.Amount)
	if err != nil {
		return r.abort(ctx, err)
	}
	r.result.ReferenceID = tx.ReferenceID
	if err := r.transition(ctx, StateBuilt, ""); err != nil {
		return r.abort(ctx, err)
	}
	if cfg.BuildOnly {
		r.result.Receipt = tron.UnknownReceipt(tx.ReferenceID)
		return r.complete(ctx, "build only")
	}

	// Sign.
	signed, err := ledger.Sign(ctx, tx)
	if err != nil {
		return r.abort(ctx, err)
	}
	if err := r.transition(ctx, StateSigned, ""); err != nil {
		return r.abort(ctx, err)
	}

	if cfg.DryRun {
		r.result.Receipt = tron.UnknownReceipt(tx.ReferenceID)
		if err := r.transition(ctx, StateSkipped, "dry run: broadcast skipped"); err != nil {
			return r.abort(ctx, err)
		}
		return r.complete(ctx, "dry run")
	}

	// Broadcast.
	ref, err := o.broadcast(ctx, r, ledger, tx, signed)
	if err != nil {
		return r.abort(ctx, err)
	}
	r.result.ReferenceID = ref
	if err := r.transition(ctx, StateBroadcast, fmt.Sprintf("accepted after %d attempt(s)", r.result.BroadcastAttempts)); err != nil {
		return r.abort(ctx, err)
	}

	// Confirm.
	if cfg.SkipConfirmation {
		r.result.Receipt = tron.UnknownReceipt(ref)
		if err := r.transition(ctx, StateSkippedConfirmation, ""); err != nil {
			return r.abort(ctx, err)
		}
		return r.complete(ctx, "")
	}

	poller := NewPoller(ledger,
		WithPollerClock(o.clock),
		WithPollerLogger(r.logger),
		WithPollerMetrics(o.metrics),
	)
	receipt := poller.Await(ctx, ref, cfg.MaxWait, cfg.PollInterval)
	r.result.Receipt = receipt
	if receipt.State == tron.StateUnknown {
		cause := ErrConfirmationTimeout
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.advise(ctx, fmt.Errorf("%w: %w", cause, ctxErr))
		} else {
			r.advise(ctx, fmt.Errorf("%w: not settled within %s", cause, cfg.MaxWait))
		}
	}
	if err := r.transition(ctx, StateConfirmed, string(receipt.State)); err != nil {
		return r.abort(ctx, err)
	}
	return r.complete(ctx, "")
}

// broadcast submits the signed transaction, retrying transient failures with
// exponential backoff. A duplicate-transaction reply to a retry means an
// earlier attempt was accepted.
func (o *Orchestrator) broadcast(
	ctx context.Context,
	r *run,
	ledger Ledger,
	tx *tron.UnsignedTransaction,
	signed *tron.SignedTransaction,
) (string, error) {
	netName := r.result.Network
	maxAttempts := o.cfg.MaxBroadcastAttempts

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.result.BroadcastAttempts = attempt

		ref, err := ledger.Broadcast(ctx, signed)
		if err == nil {
			o.metrics.RecordBroadcastAttempt(netName, "accepted")
			return ref, nil
		}

		if attempt > 1 && isDuplicate(err) {
			o.metrics.RecordBroadcastAttempt(netName, "duplicate")
			r.logger.InfoContext(ctx, "broadcast retry reported duplicate, treating as accepted",
				"attempt", attempt,
				"reference_id", tx.ReferenceID,
			)
			return tx.ReferenceID, nil
		}

		if !tron.IsTransient(err) {
			o.metrics.RecordBroadcastAttempt(netName, "rejected")
			return "", err
		}
		o.metrics.RecordBroadcastAttempt(netName, "transient")
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("broadcast interrupted: %w (last error: %w)", ctx.Err(), lastErr)
		}

		backoff := o.backoff(attempt)
		r.logger.WarnContext(ctx, "broadcast failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", backoff,
			"error", err,
		)
		o.metrics.RecordBroadcastRetry(netName, retryReason(err))

		if err := sleep(ctx, o.clock, backoff); err != nil {
			return "", fmt.Errorf("broadcast interrupted: %w (last error: %w)", err, lastErr)
		}
	}

	return "", fmt.Errorf("broadcast failed after %d attempts: %w", maxAttempts, lastErr)
}

// backoff returns BaseBackoff * 2^(attempt-1), capped at MaxBackoff.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.cfg.MaxBackoff {
			return o.cfg.MaxBackoff
		}
	}
	if d > o.cfg.MaxBackoff {
		return o.cfg.MaxBackoff
	}
	return d
}

func isDuplicate(err error) bool {
	var remote *tron.RemoteError
	return errors.As(err, &remote) && remote.Code == tron.CodeDuplicateTransaction
}

func retryReason(err error) string {
	var remote *tron.RemoteError
	if errors.As(err, &remote) && remote.Code != "" {
		return remote.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport"
}

func (r *run) transition(ctx context.Context, next State, message string) error {
	if !r.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	r.state = next
	r.result.State = next
	r.emit(ctx, message)
	return nil
}

func (r *run) emit(ctx context.Context, message string) {
	event := Event{
		RunID:       r.result.RunID,
		Network:     r.result.Network,
		State:       r.state,
		Timestamp:   r.o.clock.Now(),
		ReferenceID: r.result.ReferenceID,
		Message:     message,
	}
	r.o.metrics.RecordTransition(r.result.Network, string(r.state))
	if err := r.o.reporter.Report(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to report transfer event", "state", r.state, "error", err)
	}
}

func (r *run) advise(ctx context.Context, err error) {
	r.result.Advisories = append(r.result.Advisories, err)
	r.logger.WarnContext(ctx, "transfer advisory", "state", r.state, "advisory", err)
}

func (r *run) complete(ctx context.Context, message string) (*Result, error) {
	if err := r.transition(ctx, StateCompleted, message); err != nil {
		return r.abort(ctx, err)
	}
	r.finish("completed")
	r.logger.InfoContext(ctx, "transfer completed",
		"reference_id", r.result.ReferenceID,
		"settlement", r.result.Receipt.State,
		"broadcast_attempts", r.result.BroadcastAttempts,
		"dry_run", r.result.DryRun,
	)
	return r.result, nil
}

func (r *run) abort(ctx context.Context, err error) (*Result, error) {
	r.result.AbortedAt = r.state
	r.result.Error = err.Error()
	r.state = StateAborted
	r.result.State = StateAborted
	r.emit(ctx, err.Error())
	r.finish("aborted")
	r.logger.ErrorContext(ctx, "transfer aborted", "aborted_at", r.result.AbortedAt, "error", err)
	return r.result, err
}

func (r *run) finish(outcome string) {
	r.result.FinishedAt = r.o.clock.Now()
	r.o.metrics.RecordTransferRun(
		r.result.Network,
		outcome,
		r.result.DryRun,
		r.result.FinishedAt.Sub(r.result.StartedAt).Seconds(),
	)
}
