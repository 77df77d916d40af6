package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/tronsend/service/tron"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedQuerier returns the scripted replies in order; the last one repeats.
type scriptedQuerier struct {
	mu      sync.Mutex
	replies []tron.SettlementState
	errs    []error
	calls   int
}

func (q *scriptedQuerier) GetTransactionStatus(ctx context.Context, referenceID string) (tron.Receipt, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.calls
	q.calls++
	if i < len(q.errs) && q.errs[i] != nil {
		return tron.Receipt{}, q.errs[i]
	}
	if i >= len(q.replies) {
		i = len(q.replies) - 1
	}
	return tron.Receipt{ReferenceID: referenceID, State: q.replies[i]}, nil
}

func (q *scriptedQuerier) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// awaitAsync runs Await in a goroutine and returns a channel for its receipt.
func awaitAsync(p *Poller, ctx context.Context, maxWait, interval time.Duration) <-chan tron.Receipt {
	out := make(chan tron.Receipt, 1)
	go func() {
		out <- p.Await(ctx, "ref-1", maxWait, interval)
	}()
	return out
}

func TestPoller_StaysPendingUntilDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := &scriptedQuerier{replies: []tron.SettlementState{tron.StatePending}}
	p := NewPoller(q, WithPollerClock(clock))

	done := awaitAsync(p, context.Background(), 2*time.Second, time.Second)

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}

	select {
	case receipt := <-done:
		assert.Equal(t, tron.StateUnknown, receipt.State)
		assert.Equal(t, "ref-1", receipt.ReferenceID)
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return after the deadline")
	}
	assert.Equal(t, 2, q.count(), "one query per poll interval within the wait budget")
}

func TestPoller_ReturnsOnSettlement(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := &scriptedQuerier{replies: []tron.SettlementState{tron.StatePending, tron.StateSuccess}}
	p := NewPoller(q, WithPollerClock(clock))

	done := awaitAsync(p, context.Background(), time.Minute, 3*time.Second)

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(3 * time.Second)
	}

	select {
	case receipt := <-done:
		assert.Equal(t, tron.StateSuccess, receipt.State)
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return after settlement")
	}
	assert.Equal(t, 2, q.count())
}

func TestPoller_ReturnsFailedSettlement(t *testing.T) {
	q := &scriptedQuerier{replies: []tron.SettlementState{tron.StateFailed}}
	p := NewPoller(q)

	receipt := p.Await(context.Background(), "ref-1", time.Second, time.Millisecond)
	assert.Equal(t, tron.StateFailed, receipt.State)
	assert.Equal(t, 1, q.count())
}

func TestPoller_QueryErrorsGoToHookAndPollingContinues(t *testing.T) {
	q := &scriptedQuerier{
		replies: []tron.SettlementState{tron.StatePending, tron.StatePending, tron.StateSuccess},
		errs:    []error{errors.New("connection reset"), errors.New("connection reset")},
	}

	var mu sync.Mutex
	var polls []int
	hook := func(ctx context.Context, poll int, err error) {
		mu.Lock()
		defer mu.Unlock()
		polls = append(polls, poll)
	}

	p := NewPoller(q, WithQueryErrorHook(hook))
	receipt := p.Await(context.Background(), "ref-1", time.Second, time.Millisecond)

	assert.Equal(t, tron.StateSuccess, receipt.State)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, polls)
}

func TestPoller_CancelledContextYieldsUnknown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := &scriptedQuerier{replies: []tron.SettlementState{tron.StatePending}}
	p := NewPoller(q, WithPollerClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := awaitAsync(p, ctx, time.Hour, time.Second)

	clock.BlockUntil(1)
	cancel()

	select {
	case receipt := <-done:
		assert.Equal(t, tron.StateUnknown, receipt.State)
	case <-time.After(5 * time.Second):
		t.Fatal("Await ignored cancellation")
	}
	assert.Equal(t, 0, q.count())
}

func TestPoller_ZeroWaitQueriesOnce(t *testing.T) {
	q := &scriptedQuerier{replies: []tron.SettlementState{tron.StatePending}}
	p := NewPoller(q)

	receipt := p.Await(context.Background(), "ref-1", 0, time.Second)
	assert.Equal(t, tron.StateUnknown, receipt.State)
	require.Equal(t, 1, q.count())
}

func TestPoller_LastIntervalIsClippedToDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := &scriptedQuerier{replies: []tron.SettlementState{tron.StatePending}}
	p := NewPoller(q, WithPollerClock(clock))

	done := awaitAsync(p, context.Background(), 5*time.Second, 3*time.Second)

	clock.BlockUntil(1)
	clock.Advance(3 * time.Second)
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	select {
	case receipt := <-done:
		assert.Equal(t, tron.StateUnknown, receipt.State)
	case <-time.After(5 * time.Second):
		t.Fatal("Await overran its deadline")
	}
	assert.Equal(t, 2, q.count())
}
