package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/f1chatter/backend/db"
)

// Estimated session lengths; the provider only publishes start instants.
var durations = map[string]time.Duration{
	"FP1":               time.Hour,
	"FP2":               time.Hour,
	"FP3":               time.Hour,
	"Qualifying":        time.Hour,
	"Sprint Qualifying": 45 * time.Minute,
	"Sprint":            time.Hour,
	"Race":              2 * time.Hour,
}

// PopulateSummary reports what a schedule refresh did.
type PopulateSummary struct {
	Total   int
	Created int
	Updated int
	Skipped int
	Errors  int
}

// PopulateSessions fetches the season schedule and upserts one session row
// per scheduled session, keyed "year_round_type". Existing rows are
// refreshed; the ingestion pipeline never writes sessions itself.
func PopulateSessions(ctx context.Context, dbc *sql.DB, client *Client, year int) (*PopulateSummary, error) {
	logger := slog.Default().With(slog.String("component", "schedule_populate"), slog.Int("year", year))

	races, err := client.GetSeason(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("fetch season schedule: %w", err)
	}

	summary := &PopulateSummary{}
	for _, race := range races {
		round, err := strconv.Atoi(race.Round)
		if err != nil {
			logger.Warn("skipping race with non-numeric round", slog.String("round", race.Round))
			summary.Errors++
			continue
		}

		for _, st := range sessionTimes(race) {
			if st.when == nil {
				summary.Skipped++
				continue
			}
			start, err := parseSessionTime(*st.when)
			if err != nil {
				logger.Warn("skipping session with unparsable start",
					slog.Int("round", round), slog.String("type", st.kind), slog.Any("err", err))
				summary.Errors++
				continue
			}
			dur, ok := durations[st.kind]
			if !ok {
				dur = time.Hour
			}

			session := &db.Session{
				SessionID:   fmt.Sprintf("%d_%d_%s", year, round, st.kind),
				Year:        year,
				RoundNumber: round,
				SessionType: st.kind,
				StartTime:   start,
				EndTime:     start.Add(dur),
				EventName:   race.RaceName,
				Location:    race.Circuit.Location.Locality,
				Country:     race.Circuit.Location.Country,
			}
			created, err := db.UpsertSession(ctx, dbc, session)
			if err != nil {
				logger.Warn("upsert session failed", slog.String("session_id", session.SessionID), slog.Any("err", err))
				summary.Errors++
				continue
			}
			summary.Total++
			if created {
				summary.Created++
			} else {
				summary.Updated++
			}
		}
	}

	logger.Info("schedule refresh finished",
		slog.Int("total", summary.Total),
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors))
	return summary, nil
}

type typedTime struct {
	kind string
	when *SessionTime
}

func sessionTimes(r Race) []typedTime {
	race := &SessionTime{Date: r.Date, Time: r.Time}
	if r.Date == "" {
		race = nil
	}
	return []typedTime{
		{"FP1", r.FirstPractice},
		{"FP2", r.SecondPractice},
		{"FP3", r.ThirdPractice},
		{"Qualifying", r.Qualifying},
		{"Sprint Qualifying", r.SprintQuali},
		{"Sprint", r.Sprint},
		{"Race", race},
	}
}

func parseSessionTime(st SessionTime) (time.Time, error) {
	if st.Date == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if st.Time == "" {
		// Some historical rounds publish the date only; midnight UTC is the convention.
		return time.Parse("2006-01-02", st.Date)
	}
	return time.Parse(time.RFC3339, st.Date+"T"+st.Time)
}

// StartRefreshJob refreshes the schedule for the given year on a fixed
// interval until the context is cancelled. A zero year means the current one.
func StartRefreshJob(ctx context.Context, dbc *sql.DB, client *Client, year int, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	run := func() {
		y := year
		if y == 0 {
			y = time.Now().UTC().Year()
		}
		if _, err := PopulateSessions(ctx, dbc, client, y); err != nil {
			slog.Warn("schedule refresh", slog.Any("err", err))
		}
	}
	slog.Info("schedule refresh job starting", slog.Duration("interval", interval))
	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("schedule refresh job stopped")
			return
		case <-ticker.C:
			run()
		}
	}
}
