package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. Used by tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu        sync.RWMutex
	people    map[string]Person
	schedules []ScheduleEntry
	events    []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{people: make(map[string]Person)}
}

func (m *MemoryStore) Append(_ context.Context, e Event) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return e.ID, nil
}

func (m *MemoryStore) MostRecentToday(_ context.Context, personID, activity string, dayStart time.Time) (*Event, error) {
	end := EndOfDay(dayStart)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Event
	for i := range m.events {
		e := m.events[i]
		if e.PersonID != personID || e.Activity != activity {
			continue
		}
		if e.Timestamp.Before(dayStart) || !e.Timestamp.Before(end) {
			continue
		}
		if latest == nil || !e.Timestamp.Before(latest.Timestamp) {
			cp := e
			latest = &cp
		}
	}
	return latest, nil
}

func (m *MemoryStore) FindSchedule(_ context.Context, personID string) ([]ScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ScheduleEntry
	for _, e := range m.schedules {
		if e.PersonID == personID {
			out = append(out, e)
		}
	}
	SortSchedule(out)
	return out, nil
}

func (m *MemoryStore) UpsertPerson(_ context.Context, p Person) (Person, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.people[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.people[p.ID] = p
	return p, nil
}

func (m *MemoryStore) LookupPerson(_ context.Context, id string) (*Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) ListPeople(_ context.Context) ([]Person, error) {
	m.mu.RLock()
	out := make([]Person, 0, len(m.people))
	for _, p := range m.people {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) AddSchedule(_ context.Context, e ScheduleEntry) (ScheduleEntry, error) {
	if err := e.Validate(); err != nil {
		return ScheduleEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.schedules = append(m.schedules, e)
	m.mu.Unlock()
	return e, nil
}

func (m *MemoryStore) RemoveSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.schedules {
		if e.ID == id {
			m.schedules = append(m.schedules[:i], m.schedules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListEvents(_ context.Context, f EventFilter) ([]Event, error) {
	f = normalizeFilter(f)
	m.mu.RLock()
	var matched []Event
	for _, e := range m.events {
		if f.PersonID != "" && e.PersonID != f.PersonID {
			continue
		}
		if f.Activity != "" && e.Activity != f.Activity {
			continue
		}
		matched = append(matched, e)
	}
	m.mu.RUnlock()
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}
