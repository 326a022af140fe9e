package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMinimumDwell is the time a person must stay before a Time Out is accepted.
const DefaultMinimumDwell = 15 * time.Minute

// ClockConfig tunes a Clock.
type ClockConfig struct {
	MinimumDwell time.Duration
	Location     *time.Location
}

// Clock decides, per accepted recognition, whether to log a Time In, a Time Out, or nothing.
type Clock struct {
	store    Store
	minDwell time.Duration
	loc      *time.Location
	log      *slog.Logger
	newID    func() string

	mu sync.Mutex
}

// NewClock creates a clock backed by store. A negative dwell falls back to the default.
func NewClock(store Store, cfg ClockConfig, log *slog.Logger) *Clock {
	if cfg.MinimumDwell < 0 {
		cfg.MinimumDwell = DefaultMinimumDwell
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &Clock{
		store:    store,
		minDwell: cfg.MinimumDwell,
		loc:      cfg.Location,
		log:      log.With("component", "attendance"),
		newID:    uuid.NewString,
	}
}

// Location is the zone day boundaries and schedules are evaluated in.
func (c *Clock) Location() *time.Location { return c.loc }

// Decide evaluates the attempt and appends at most one event. It never returns a Go error:
// rejections and storage failures are reported through the Outcome.
func (c *Clock) Decide(ctx context.Context, a Attempt) Outcome {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	now := a.At.In(c.loc)
	dayStart := StartOfDay(now, c.loc)

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.store.FindSchedule(ctx, a.PersonID)
	if err != nil {
		return c.failed(a, "find_schedule", err)
	}
	entry, ok := ActiveEntry(entries, now)
	if !ok {
		return Outcome{
			Kind:   OutcomeNoActiveSchedule,
			Reason: ErrNoActiveSchedule.Error(),
			Err:    ErrNoActiveSchedule,
		}
	}

	prior, err := c.store.MostRecentToday(ctx, a.PersonID, entry.Activity, dayStart)
	if err != nil {
		return c.failed(a, "most_recent_today", err)
	}

	next := TimeIn
	if prior != nil && prior.Type == TimeIn {
		elapsed := now.Sub(prior.Timestamp)
		if elapsed < c.minDwell {
			wait := c.minDwell - elapsed
			return Outcome{
				Kind:     OutcomeDwellTooShort,
				Prior:    prior,
				Activity: entry.Activity,
				Wait:     wait,
				Reason:   fmt.Sprintf("must wait %s before Time Out", wait.Round(time.Minute)),
				Err:      ErrDwellTooShort,
			}
		}
		next = TimeOut
	}
	// Only reachable when another writer broke alternation.
	if prior != nil && prior.Type == next {
		return Outcome{
			Kind:     OutcomeDuplicateEventType,
			Prior:    prior,
			Activity: entry.Activity,
			Reason:   fmt.Sprintf("already logged %s for %s today", next.Label(), entry.Activity),
			Err:      ErrDuplicateEventType,
		}
	}

	evt := Event{
		ID:        c.newID(),
		PersonID:  a.PersonID,
		Timestamp: a.At,
		Type:      next,
		Activity:  entry.Activity,
		Score:     a.Score,
		Source:    a.Source,
	}
	id, err := c.store.Append(ctx, evt)
	if err != nil {
		return c.failed(a, "append", err)
	}
	if id != "" {
		evt.ID = id
	}
	c.log.Info("attendance logged",
		"person_id", evt.PersonID, "event_type", evt.Type, "activity", evt.Activity, "at", evt.Timestamp)
	return Outcome{
		Kind:     OutcomeLogged,
		Event:    &evt,
		Prior:    prior,
		Activity: entry.Activity,
		Reason:   fmt.Sprintf("%s logged for %s", next.Label(), entry.Activity),
	}
}

func (c *Clock) failed(a Attempt, stage string, err error) Outcome {
	c.log.Error("attendance storage failure",
		"person_id", a.PersonID, "at", a.At, "stage", stage, "err", err)
	return Outcome{
		Kind:   OutcomeFailed,
		Reason: "attendance could not be recorded",
		Err:    fmt.Errorf("%w: %s: %w", ErrStorage, stage, err),
	}
}
