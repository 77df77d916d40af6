package transfer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/tronsend/service/metrics"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/jonboulle/clockwork"
)

// StatusQuerier is the part of the ledger the poller needs.
type StatusQuerier interface {
	GetTransactionStatus(ctx context.Context, referenceID string) (tron.Receipt, error)
}

// Poller waits for a broadcast transaction to settle.
type Poller struct {
	querier StatusQuerier
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	onError func(ctx context.Context, poll int, err error)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerClock sets the clock used for waiting. Tests pass a fake clock.
func WithPollerClock(c clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollerMetrics sets the metrics collector.
func WithPollerMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// WithQueryErrorHook is called for every failed status query. The poller keeps
// polling afterwards.
func WithQueryErrorHook(fn func(ctx context.Context, poll int, err error)) PollerOption {
	return func(p *Poller) { p.onError = fn }
}

// NewPoller creates a poller over the given status source.
func NewPoller(q StatusQuerier, opts ...PollerOption) *Poller {
	p := &Poller{
		querier: q,
		clock:   clockwork.NewRealClock(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onError == nil {
		p.onError = func(ctx context.Context, poll int, err error) {
			p.logger.WarnContext(ctx, "transaction status query failed", "poll", poll, "error", err)
		}
	}
	return p
}

// Await polls until the transaction settles, maxWait elapses, or ctx is done.
// It waits pollInterval before each query, so the first query happens one
// interval after the call. The receipt is never Pending: an unresolved wait
// yields a receipt in the Unknown state.
func (p *Poller) Await(ctx context.Context, referenceID string, maxWait, pollInterval time.Duration) tron.Receipt {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	start := p.clock.Now()
	deadline := start.Add(maxWait)

	for poll := 1; ; poll++ {
		wait := pollInterval
		if remaining := deadline.Sub(p.clock.Now()); remaining < wait {
			wait = remaining
		}
		if wait > 0 {
			if err := sleep(ctx, p.clock, wait); err != nil {
				p.logger.InfoContext(ctx, "confirmation wait cancelled", "reference_id", referenceID, "polls", poll-1)
				return p.finish(start, tron.UnknownReceipt(referenceID))
			}
		}
		if ctx.Err() != nil {
			return p.finish(start, tron.UnknownReceipt(referenceID))
		}

		receipt, err := p.querier.GetTransactionStatus(ctx, referenceID)
		if err != nil {
			p.metrics.RecordConfirmationPoll("error")
			p.onError(ctx, poll, err)
		} else {
			p.metrics.RecordConfirmationPoll(string(receipt.State))
			if receipt.State != tron.StatePending {
				p.logger.DebugContext(ctx, "transaction settled",
					"reference_id", referenceID,
					"state", receipt.State,
					"polls", poll,
				)
				return p.finish(start, receipt)
			}
		}

		if !p.clock.Now().Before(deadline) {
			p.logger.InfoContext(ctx, "confirmation wait exhausted",
				"reference_id", referenceID,
				"max_wait", maxWait,
				"polls", poll,
			)
			return p.finish(start, tron.UnknownReceipt(referenceID))
		}
	}
}

func (p *Poller) finish(start time.Time, receipt tron.Receipt) tron.Receipt {
	p.metrics.RecordConfirmationWait(string(receipt.State), p.clock.Since(start).Seconds())
	return receipt
}

// sleep blocks for d on the given clock or until ctx is done.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
