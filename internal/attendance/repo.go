package attendance

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Dialect selects the SQL flavour of a Repository.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Repository persists attendance data in Postgres or SQLite.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRepository creates a repo. Queries are written with $N placeholders.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

// Migrate applies the embedded schema for the repository's dialect.
func (r *Repository) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + string(r.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("schema for %s: %w", r.dialect, err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// q rewrites $N to ?N for SQLite, which binds numbered parameters positionally.
func (r *Repository) q(query string) string {
	if r.dialect == SQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

const eventColumns = `id, person_id, occurred_at, event_type, activity, score, source_id`

// Append writes a new event.
func (r *Repository) Append(ctx context.Context, evt Event) (string, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO attendance_events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`), evt.ID, evt.PersonID, evt.Timestamp.UTC(), string(evt.Type), evt.Activity, evt.Score, evt.Source)
	if err != nil {
		return "", fmt.Errorf("insert attendance event: %w", err)
	}
	return evt.ID, nil
}

// MostRecentToday returns the latest event in the day starting at dayStart.
func (r *Repository) MostRecentToday(ctx context.Context, personID, activity string, dayStart time.Time) (*Event, error) {
	row := r.db.QueryRowContext(ctx, r.q(`
		SELECT `+eventColumns+`
		FROM attendance_events
		WHERE person_id = $1 AND activity = $2 AND occurred_at >= $3 AND occurred_at < $4
		ORDER BY occurred_at DESC
		LIMIT 1
	`), personID, activity, dayStart.UTC(), EndOfDay(dayStart).UTC())
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

// ListEvents returns events, newest first, with basic filters.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	f = normalizeFilter(f)
	query := `SELECT ` + eventColumns + ` FROM attendance_events`
	args := []any{}
	clauses := []string{}
	if f.PersonID != "" {
		clauses = append(clauses, "person_id = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.PersonID)
	}
	if f.Activity != "" {
		clauses = append(clauses, "activity = $"+strconv.Itoa(len(args)+1))
		args = append(args, f.Activity)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var (
		evt Event
		typ string
	)
	if err := s.Scan(&evt.ID, &evt.PersonID, &evt.Timestamp, &typ, &evt.Activity, &evt.Score, &evt.Source); err != nil {
		return Event{}, err
	}
	evt.Type = EventType(typ)
	return evt, nil
}

// FindSchedule returns a person's weekly entries in store order.
func (r *Repository) FindSchedule(ctx context.Context, personID string) ([]ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, person_id, day_of_week, start_seconds, end_seconds, activity
		FROM schedules
		WHERE person_id = $1
		ORDER BY day_of_week, start_seconds, end_seconds, id
	`), personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ScheduleEntry
	for rows.Next() {
		var (
			e               ScheduleEntry
			day, start, end int
		)
		if err := rows.Scan(&e.ID, &e.PersonID, &day, &start, &end, &e.Activity); err != nil {
			return nil, err
		}
		e.Day, e.Start, e.End = time.Weekday(day), ClockTime(start), ClockTime(end)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddSchedule validates and inserts a schedule entry.
func (r *Repository) AddSchedule(ctx context.Context, e ScheduleEntry) (ScheduleEntry, error) {
	if err := e.Validate(); err != nil {
		return ScheduleEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO schedules (id, person_id, day_of_week, start_seconds, end_seconds, activity)
		VALUES ($1,$2,$3,$4,$5,$6)
	`), e.ID, e.PersonID, int(e.Day), int(e.Start), int(e.End), e.Activity)
	if err != nil {
		return ScheduleEntry{}, fmt.Errorf("insert schedule: %w", err)
	}
	return e, nil
}

// RemoveSchedule deletes one entry. Missing ids return ErrNotFound.
func (r *Repository) RemoveSchedule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM schedules WHERE id = $1`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertPerson creates or updates a person.
func (r *Repository) UpsertPerson(ctx context.Context, p Person) (Person, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO people (id, code, display_name, department, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			display_name = excluded.display_name,
			department = excluded.department,
			role = excluded.role
	`), p.ID, p.Code, p.DisplayName, p.Department, p.Role, p.CreatedAt.UTC())
	if err != nil {
		return Person{}, fmt.Errorf("upsert person: %w", err)
	}
	stored, err := r.LookupPerson(ctx, p.ID)
	if err != nil {
		return Person{}, err
	}
	if stored == nil {
		return Person{}, ErrNotFound
	}
	return *stored, nil
}

// LookupPerson returns a person by id, or nil when unknown.
func (r *Repository) LookupPerson(ctx context.Context, id string) (*Person, error) {
	row := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, code, display_name, department, role, created_at
		FROM people WHERE id = $1
	`), id)
	var p Person
	if err := row.Scan(&p.ID, &p.Code, &p.DisplayName, &p.Department, &p.Role, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListPeople returns all people ordered by code.
func (r *Repository) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, display_name, department, role, created_at
		FROM people
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Code, &p.DisplayName, &p.Department, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}
