package attendance

import (
	"errors"
	"time"
)

// Business rejections. These are expected outcomes, reported to the user, never logged as failures.
var (
	ErrNoActiveSchedule   = errors.New("no active schedule at this time")
	ErrDwellTooShort      = errors.New("must wait before Time Out")
	ErrDuplicateEventType = errors.New("already logged this event type for this activity today")
)

// ErrStorage wraps any failure of the backing store.
var ErrStorage = errors.New("attendance storage failure")

// ErrNotFound is returned by registry lookups that require an existing record.
var ErrNotFound = errors.New("not found")

// Person is a registered identity. The core only reads it.
type Person struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Department  string    `json:"department,omitempty"`
	Role        string    `json:"role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventType is the kind of presence event.
type EventType string

const (
	TimeIn  EventType = "time_in"
	TimeOut EventType = "time_out"
)

// Label returns the human form used in messages.
func (t EventType) Label() string {
	switch t {
	case TimeIn:
		return "Time In"
	case TimeOut:
		return "Time Out"
	default:
		return string(t)
	}
}

// Event is one append-only attendance record.
type Event struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"event_type"`
	Activity  string    `json:"activity"`
	Score     float64   `json:"confidence_score"`
	Source    string    `json:"source_id"`
}

// Attempt is an accepted recognition handed to the clock.
type Attempt struct {
	PersonID string    `json:"person_id"`
	Score    float64   `json:"score"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
	TraceID  string    `json:"trace_id,omitempty"`
}

// OutcomeKind classifies the result of a clock decision.
type OutcomeKind string

const (
	OutcomeLogged             OutcomeKind = "logged"
	OutcomeNoActiveSchedule   OutcomeKind = "no_active_schedule"
	OutcomeDwellTooShort      OutcomeKind = "dwell_too_short"
	OutcomeDuplicateEventType OutcomeKind = "duplicate_event_type"
	OutcomeFailed             OutcomeKind = "failed"
)

// Outcome is the result of Clock.Decide. Event is set only when Kind is OutcomeLogged.
type Outcome struct {
	Kind     OutcomeKind   `json:"kind"`
	Event    *Event        `json:"event,omitempty"`
	Prior    *Event        `json:"prior,omitempty"`
	Activity string        `json:"activity,omitempty"`
	Reason   string        `json:"reason"`
	Wait     time.Duration `json:"wait,omitempty"`
	Err      error         `json:"-"`
}

// Logged reports whether an event was appended.
func (o Outcome) Logged() bool { return o.Kind == OutcomeLogged }

// Rejected reports a business rejection (not a technical failure).
func (o Outcome) Rejected() bool {
	switch o.Kind {
	case OutcomeNoActiveSchedule, OutcomeDwellTooShort, OutcomeDuplicateEventType:
		return true
	}
	return false
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	PersonID string
	Activity string
	Limit    int
	Offset   int
}

// Decision pairs an attempt with its outcome for observers.
type Decision struct {
	Attempt Attempt `json:"attempt"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// NewDecision copies the outcome error into a marshalable field.
func NewDecision(a Attempt, o Outcome) Decision {
	d := Decision{Attempt: a, Outcome: o}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	return d
}
