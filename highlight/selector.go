// Package highlight answers "what is the most relevant radio message right
// now": it finds the session covering an instant and the latest message in a
// short trailing window.
package highlight

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/ingest"
)

// Window is the fixed trailing interval a highlight is drawn from.
const Window = 30 * time.Second

// ErrNotCovered is returned when no session's interval contains the instant.
var ErrNotCovered = errors.New("no session covers the given instant")

// Result carries the covering session, the resolved trailing window, and the
// highlight message. Message is nil when the window holds no message; that is
// a valid outcome, not an error.
type Result struct {
	Session     *db.Session
	WindowStart time.Time
	WindowEnd   time.Time
	Message     *db.Message
}

// Select resolves the highlight for an instant. The instant is normalized to
// UTC; callers are responsible for rejecting zone-less input at their
// boundary (an offset-less timestamp is ambiguous and never reaches here).
//
// The window is [max(session start, end-30s), min(instant, session end)].
// Ties on posted_at break toward the highest Discord id, so the same query
// always names the same message.
func Select(ctx context.Context, dbc *sql.DB, instant time.Time) (*Result, error) {
	instant = instant.UTC()

	session, err := db.SessionCovering(ctx, dbc, instant)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotCovered
		}
		return nil, err
	}

	windowStart, windowEnd := ingest.TrailingWindow(instant, Window, session.StartTime, session.EndTime)

	msg, err := db.LatestMessageInWindow(ctx, dbc, session.SessionID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	return &Result{
		Session:     session,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Message:     msg,
	}, nil
}
