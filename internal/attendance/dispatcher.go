package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"faceclock/internal/queue"
)

// MessageType tags attempts on the shared queue.
const MessageType = "attendance.attempt"

// Decider is the part of Clock the dispatcher needs.
type Decider interface {
	Decide(ctx context.Context, a Attempt) Outcome
}

// OutcomeFunc observes every decision made by the dispatcher's worker.
type OutcomeFunc func(Attempt, Outcome)

// Dispatcher moves attempts off the capture goroutine and applies them in FIFO order
// on a single worker.
type Dispatcher struct {
	q       queue.Queue
	decider Decider
	log     *slog.Logger
	onDone  OutcomeFunc
}

func NewDispatcher(q queue.Queue, decider Decider, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{q: q, decider: decider, log: log.With("component", "dispatcher")}
}

// OnOutcome registers the callback. Call before Run.
func (d *Dispatcher) OnOutcome(fn OutcomeFunc) { d.onDone = fn }

// Submit enqueues the attempt. It does not wait for the decision.
func (d *Dispatcher) Submit(ctx context.Context, a Attempt) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	if err := d.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		d.log.Warn("attempt dropped", "person_id", a.PersonID, "at", a.At, "err", err)
		return err
	}
	return nil
}

// Run consumes attempts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	msgs, err := d.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume attempts: %w", err)
	}
	for msg := range msgs {
		if msg.Type != MessageType {
			d.log.Warn("unknown message type", "type", msg.Type)
			continue
		}
		var a Attempt
		if err := json.Unmarshal(msg.Body, &a); err != nil {
			d.log.Error("decode attempt", "err", err)
			continue
		}
		out := d.decider.Decide(ctx, a)
		if d.onDone != nil {
			d.onDone(a, out)
		}
	}
	return nil
}
