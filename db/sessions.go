package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const sessionColumns = `session_id, year, round_number, session_type, start_time, end_time, event_name, location, country`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	err := row.Scan(&s.SessionID, &s.Year, &s.RoundNumber, &s.SessionType,
		&s.StartTime, &s.EndTime, &s.EventName, &s.Location, &s.Country)
	if err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return &s, nil
}

// GetSession looks a session up by its external identifier.
// Returns ErrNotFound when absent.
func GetSession(ctx context.Context, dbx *sql.DB, sessionID string) (*Session, error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id=$1`, sessionID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSession creates or replaces a session row keyed on session_id
// (last write wins on every field).
func UpsertSession(ctx context.Context, dbx *sql.DB, s *Session) (created bool, err error) {
	row := dbx.QueryRowContext(ctx, `
		INSERT INTO sessions (session_id, year, round_number, session_type, start_time, end_time, event_name, location, country, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			year=EXCLUDED.year,
			round_number=EXCLUDED.round_number,
			session_type=EXCLUDED.session_type,
			start_time=EXCLUDED.start_time,
			end_time=EXCLUDED.end_time,
			event_name=EXCLUDED.event_name,
			location=EXCLUDED.location,
			country=EXCLUDED.country,
			updated_at=NOW()
		RETURNING (xmax = 0)`,
		s.SessionID, s.Year, s.RoundNumber, s.SessionType, s.StartTime, s.EndTime,
		s.EventName, s.Location, s.Country)
	if err := row.Scan(&created); err != nil {
		return false, fmt.Errorf("upsert session %s: %w", s.SessionID, err)
	}
	return created, nil
}

// LiveSessionsAt returns sessions whose interval covers now (start <= now < end),
// ordered by start time ascending.
func LiveSessionsAt(ctx context.Context, dbx *sql.DB, now time.Time) ([]Session, error) {
	rows, err := dbx.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE start_time <= $1 AND end_time > $1 ORDER BY start_time ASC`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SessionCovering returns the session whose [start, end] interval contains the
// instant, or ErrNotFound. Should two sessions overlap, the earliest start wins.
func SessionCovering(ctx context.Context, dbx *sql.DB, instant time.Time) (*Session, error) {
	row := dbx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE start_time <= $1 AND end_time >= $1 ORDER BY start_time ASC LIMIT 1`,
		instant)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns sessions ordered by year (descending), round number and
// session type. Year 0 means no year filter.
func ListSessions(ctx context.Context, dbx *sql.DB, year int) ([]Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	if year != 0 {
		q += ` WHERE year=$1`
		args = append(args, year)
	}
	q += ` ORDER BY year DESC, round_number ASC, session_type ASC`
	rows, err := dbx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}
