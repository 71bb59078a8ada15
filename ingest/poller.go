package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/telemetry"
)

// PollWindow is the default trailing window one poll cycle ingests.
const PollWindow = 30 * time.Second

// PollOutcome reports what a single poll cycle did.
type PollOutcome struct {
	// Skipped is true when no session was live and no import ran.
	Skipped     bool
	SessionID   string
	WindowStart time.Time
	WindowEnd   time.Time
	Summary     *ImportSummary
}

// Poll finds the currently live session and imports its trailing window.
// With no live session the cycle is a no-op. Should several sessions be live
// at once, the earliest start wins and a warning is logged. The poller keeps
// no state between cycles; overlapping trailing windows are harmless because
// every record is an idempotent upsert.
func Poll(ctx context.Context, dbc *sql.DB, imp *Importer, window time.Duration, channelID string) (*PollOutcome, error) {
	if window <= 0 {
		window = PollWindow
	}
	now := imp.now().UTC()
	logger := slog.Default().With(slog.String("component", "live_poll"))

	live, err := db.LiveSessionsAt(ctx, dbc, now)
	if err != nil {
		return nil, err
	}
	telemetry.SetLiveSessions(len(live))
	if len(live) == 0 {
		logger.Debug("no live session detected; poll skipped", slog.Time("now", now))
		return &PollOutcome{Skipped: true}, nil
	}
	if len(live) > 1 {
		logger.Warn("multiple live sessions detected; using the earliest start time",
			slog.Int("count", len(live)))
	}
	session := live[0]

	windowStart, windowEnd := TrailingWindow(now, window, session.StartTime, now)

	logger.Info("live session detected",
		slog.String("session_id", session.SessionID),
		slog.Time("window_start", windowStart),
		slog.Time("window_end", windowEnd))

	telemetry.PollCycles.Inc()
	summary, err := imp.Run(ctx, ImportOptions{
		SessionID: session.SessionID,
		ChannelID: channelID,
		Start:     &windowStart,
		End:       &windowEnd,
	})
	if err != nil {
		return nil, err
	}
	return &PollOutcome{
		SessionID:   session.SessionID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Summary:     summary,
	}, nil
}

// StartLivePollJob runs Poll on a fixed interval until the context is
// cancelled. Errors are logged and the next tick retries; a wedged upstream
// must not kill the loop.
func StartLivePollJob(ctx context.Context, dbc *sql.DB, imp *Importer, interval, window time.Duration, channelID string) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	slog.Info("live poll job starting",
		slog.Duration("interval", interval), slog.Duration("window", window))
	// Kick an immediate run so we don't wait a full interval after boot.
	if _, err := Poll(ctx, dbc, imp, window, channelID); err != nil {
		slog.Warn("poll cycle", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("live poll job stopped")
			return
		case <-ticker.C:
			if _, err := Poll(ctx, dbc, imp, window, channelID); err != nil {
				slog.Warn("poll cycle", slog.Any("err", err))
			}
		}
	}
}
