package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceclock/internal/logging"
	"faceclock/internal/queue"
)

type recordedOutcome struct {
	a   Attempt
	out Outcome
}

func TestDispatcherAppliesInOrder(t *testing.T) {
	clock, store := newLectureClock(t, 15*time.Minute)
	q := queue.NewInMemory(16)
	d := NewDispatcher(q, clock, logging.Discard())

	got := make(chan recordedOutcome, 8)
	d.OnOutcome(func(a Attempt, out Outcome) { got <- recordedOutcome{a, out} })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, d.Run(ctx))
	}()

	for _, at := range []time.Time{monday(9, 0), monday(9, 5), monday(9, 20)} {
		require.NoError(t, d.Submit(ctx, attempt(at)))
	}

	var kinds []OutcomeKind
	for i := 0; i < 3; i++ {
		select {
		case r := <-got:
			kinds = append(kinds, r.out.Kind)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for outcome")
		}
	}
	cancel()
	wg.Wait()

	assert.Equal(t, []OutcomeKind{OutcomeLogged, OutcomeDwellTooShort, OutcomeLogged}, kinds)
	events, err := store.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestDispatcherSubmitFullQueue(t *testing.T) {
	clock, _ := newLectureClock(t, 0)
	d := NewDispatcher(queue.NewInMemory(1), clock, logging.Discard())
	ctx := context.Background()

	require.NoError(t, d.Submit(ctx, attempt(monday(9, 0))))
	assert.ErrorIs(t, d.Submit(ctx, attempt(monday(9, 1))), queue.ErrFull)
}

func TestDispatcherSkipsForeignMessages(t *testing.T) {
	clock, _ := newLectureClock(t, 0)
	q := queue.NewInMemory(4)
	d := NewDispatcher(q, clock, logging.Discard())

	calls := make(chan Outcome, 4)
	d.OnOutcome(func(_ Attempt, out Outcome) { calls <- out })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "other", Body: []byte("{}")}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: MessageType, Body: []byte("not json")}))
	require.NoError(t, d.Submit(ctx, attempt(monday(9, 0))))

	go func() { _ = d.Run(ctx) }()

	select {
	case out := <-calls:
		assert.Equal(t, OutcomeLogged, out.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
	assert.Empty(t, calls)
}
