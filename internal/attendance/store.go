package attendance

import (
	"context"
	"time"
)

// Store is the persistence the clock depends on.
type Store interface {
	// Append persists e and returns its id.
	Append(ctx context.Context, e Event) (string, error)
	// MostRecentToday returns the latest event for person and activity in
	// [dayStart, EndOfDay(dayStart)), or nil when there is none.
	MostRecentToday(ctx context.Context, personID, activity string, dayStart time.Time) (*Event, error)
	// FindSchedule returns every entry for person, ordered as SortSchedule does.
	FindSchedule(ctx context.Context, personID string) ([]ScheduleEntry, error)
}

// Registry manages the records the clock reads. It is used by the API and CLI.
type Registry interface {
	UpsertPerson(ctx context.Context, p Person) (Person, error)
	LookupPerson(ctx context.Context, id string) (*Person, error)
	ListPeople(ctx context.Context) ([]Person, error)
	AddSchedule(ctx context.Context, e ScheduleEntry) (ScheduleEntry, error)
	RemoveSchedule(ctx context.Context, id string) error
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
}

// Backend is a complete attendance store.
type Backend interface {
	Store
	Registry
}

const defaultListLimit = 50

func normalizeFilter(f EventFilter) EventFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
