package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event is emitted on every lifecycle transition.
type Event struct {
	RunID       string    `json:"run_id"`
	Network     string    `json:"network"`
	State       State     `json:"state"`
	Timestamp   time.Time `json:"timestamp"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Reporter receives transition events. Implementations render or forward them;
// a failing reporter never aborts a run.
type Reporter interface {
	Report(ctx context.Context, event Event) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, event Event) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MultiReporter fans an event out to several reporters.
type MultiReporter []Reporter

// Report forwards the event to every reporter and joins their errors.
func (m MultiReporter) Report(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReporter writes events as structured log records.
type LogReporter struct {
	Logger *slog.Logger
}

// Report logs the event at info level, or warn level for aborts.
func (l LogReporter) Report(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.State == StateAborted {
		level = slog.LevelWarn
	}
	l.Logger.Log(ctx, level, "transfer state changed",
		"run_id", event.RunID,
		"network", event.Network,
		"state", string(event.State),
		"reference_id", event.ReferenceID,
		"message", event.Message,
		"timestamp", event.Timestamp,
	)
	return nil
}

// Recorder keeps events in memory. Useful for tests and for CLI output.
type Recorder struct {
	Events []Event
}

// Report appends the event.
func (r *Recorder) Report(ctx context.Context, event Event) error {
	r.Events = append(r.Events, event)
	return nil
}

// States returns the recorded states in order.
func (r *Recorder) States() []State {
	states := make([]State, len(r.Events))
	for i, e := range r.Events {
		states[i] = e.State
	}
	return states
}
