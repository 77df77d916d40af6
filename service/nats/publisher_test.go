package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/tronsend/service/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "transfers.nile.4b1d", Subject("nile", "4b1d"))
	assert.Equal(t, "transfers.nile._", Subject("nile", ""))
	assert.Equal(t, "transfers.a_b.c_d", Subject("a.b", "c*d"))
}

func TestFilterSubject(t *testing.T) {
	assert.Equal(t, "transfers.*.*", FilterSubject("", ""))
	assert.Equal(t, "transfers.shasta.*", FilterSubject("shasta", ""))
	assert.Equal(t, "transfers.*.run-1", FilterSubject("", "run-1"))
}

func TestFromTransferEvent(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := FromTransferEvent(transfer.Event{
		RunID:       "run-1",
		Network:     "nile",
		State:       transfer.StateBroadcast,
		Timestamp:   ts,
		ReferenceID: "abcd",
		Message:     "accepted after 1 attempt(s)",
	})

	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "nile", event.Network)
	assert.Equal(t, "broadcast", event.State)
	assert.Equal(t, "abcd", event.ReferenceID)
	assert.Equal(t, ts, event.Timestamp)
	assert.False(t, event.PublishedAt.IsZero())
}

func TestEventPublisher_ForwardsOrchestratorEvents(t *testing.T) {
	mock := NewMockPublisher()
	reporter := EventPublisher{Publisher: mock}

	var _ transfer.Reporter = reporter

	require.NoError(t, reporter.Report(context.Background(), transfer.Event{RunID: "run-1", Network: "nile", State: transfer.StateInit}))
	require.NoError(t, reporter.Report(context.Background(), transfer.Event{RunID: "run-2", Network: "nile", State: transfer.StateInit}))
	require.NoError(t, reporter.Report(context.Background(), transfer.Event{RunID: "run-1", Network: "nile", State: transfer.StateBalanceChecked}))

	assert.Equal(t, 3, mock.GetPublishedEventCount())
	all := mock.GetPublishedEvents()
	assert.Equal(t, "transfers.nile.run-2", Subject(all[1].Network, all[1].RunID))
	run1 := mock.GetPublishedEventsForRun("run-1")
	require.Len(t, run1, 2)
	assert.Equal(t, "balance_checked", run1[1].State)
}

func TestEventPublisher_PropagatesErrors(t *testing.T) {
	mock := NewMockPublisher()
	mock.SetPublishError(errors.New("nats down"))

	err := EventPublisher{Publisher: mock}.Report(context.Background(), transfer.Event{RunID: "run-1"})
	assert.EqualError(t, err, "nats down")
	assert.Equal(t, 0, mock.GetPublishedEventCount())

	mock.Reset()
	assert.NoError(t, EventPublisher{Publisher: mock}.Report(context.Background(), transfer.Event{RunID: "run-1"}))
}
