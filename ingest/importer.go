package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/telemetry"
)

// MaxRuntime is the default wall-clock ceiling for one import run. The bound
// is hard: it is re-checked after the export and between records, so the
// importer stays safe to run synchronously inside a request handler.
const MaxRuntime = 120 * time.Second

// ImportOptions selects what one import run covers. Start/End override the
// session bounds when set.
type ImportOptions struct {
	SessionID string
	ChannelID string
	Start     *time.Time
	End       *time.Time
	KeepFile  bool
}

// ImportSummary is the terminal output of a successful run.
type ImportSummary struct {
	SessionID        string        `json:"session_id"`
	Total            int           `json:"total"`
	Created          int           `json:"created"`
	Updated          int           `json:"updated"`
	SkippedFilter    int           `json:"skipped_filter"`
	MissingContent   int           `json:"missing_content"`
	MissingTimestamp int           `json:"missing_timestamp"`
	Elapsed          time.Duration `json:"elapsed"`
	// Captured exporter output, for API callers that surface diagnostics.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Importer orchestrates export -> parse -> normalize -> upsert for one
// session under a shared runtime budget.
type Importer struct {
	DB       *sql.DB
	Exporter Exporter
	// ExportDir receives the temporary export artifacts.
	ExportDir string
	// Budget caps total runtime; zero means MaxRuntime.
	Budget time.Duration
	// KeepFiles retains every export artifact; per-run ImportOptions.KeepFile
	// does the same for a single run.
	KeepFiles bool
	// Now is the clock; nil means time.Now. Injected for deterministic tests.
	Now func() time.Time
}

func (i *Importer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Importer) budget() time.Duration {
	if i.Budget > 0 {
		return i.Budget
	}
	return MaxRuntime
}

// Run executes the full import protocol and returns a summary, or a typed
// error carrying enough context (captured subprocess output, parse error
// text) to diagnose without re-running.
//
// Re-running with the same window against unchanged upstream content leaves
// the message set untouched: every record is an upsert keyed on its Discord
// id.
func (i *Importer) Run(ctx context.Context, opts ImportOptions) (*ImportSummary, error) {
	started := i.now()
	telemetry.ImportsStarted.Inc()
	logger := slog.Default().With(
		slog.String("component", "message_import"),
		slog.String("session_id", opts.SessionID),
	)

	session, err := db.GetSession(ctx, i.DB, opts.SessionID)
	if err != nil {
		telemetry.ImportsFailed.Inc()
		return nil, err
	}

	startFilter, endFilter, err := ResolveWindow(session.StartTime, session.EndTime, opts.Start, opts.End)
	if err != nil {
		telemetry.ImportsFailed.Inc()
		return nil, fmt.Errorf("%w: check session timing for %s", err, opts.SessionID)
	}

	remaining := i.budget() - i.now().Sub(started)
	if remaining <= 0 {
		telemetry.ImportsFailed.Inc()
		return nil, fmt.Errorf("%w before exporting began", ErrRuntimeExceeded)
	}

	if err := os.MkdirAll(i.ExportDir, 0o755); err != nil {
		telemetry.ImportsFailed.Inc()
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot create export dir %s: %v", i.ExportDir, err)}
	}
	exportPath := filepath.Join(i.ExportDir, fmt.Sprintf("%s_%d.json", opts.SessionID, started.Unix()))

	logger.Info("exporting messages",
		slog.String("channel_id", opts.ChannelID),
		slog.Time("window_start", startFilter),
		slog.Time("window_end", endFilter),
		slog.Duration("budget", remaining))

	exportStart := i.now()
	result, err := i.Exporter.Export(ctx, ExportRequest{
		ChannelID: opts.ChannelID,
		DestPath:  exportPath,
		After:     &startFilter,
		Before:    &endFilter,
		Budget:    remaining,
	})
	if err != nil {
		telemetry.ImportsFailed.Inc()
		return nil, err
	}
	telemetry.ExportDuration.Observe(i.now().Sub(exportStart).Seconds())

	if err := i.checkRuntime(started); err != nil {
		telemetry.ImportsFailed.Inc()
		return nil, err
	}

	records, err := loadExportPayload(result.Path)
	if err != nil {
		telemetry.ImportsFailed.Inc()
		return nil, err
	}

	summary := &ImportSummary{
		SessionID: opts.SessionID,
		Total:     len(records),
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
	}
	for _, rec := range records {
		if err := i.checkRuntime(started); err != nil {
			telemetry.ImportsFailed.Inc()
			return nil, err
		}

		if rec.Content == "" {
			summary.MissingContent++
			continue
		}
		if rec.Timestamp == "" {
			summary.MissingTimestamp++
			continue
		}
		postedAt, err := parseExportTime(rec.Timestamp)
		if err != nil {
			logger.Warn("skipping message with unparsable timestamp",
				slog.String("discord_id", rec.ID),
				slog.String("timestamp", rec.Timestamp))
			summary.SkippedFilter++
			continue
		}
		// Local window filter. Defense in depth: the export tool may
		// over-return around the --after/--before bounds.
		if postedAt.Before(startFilter) || postedAt.After(endFilter) {
			summary.SkippedFilter++
			continue
		}

		var editedAt *time.Time
		if rec.TimestampEdited != nil && *rec.TimestampEdited != "" {
			if t, err := parseExportTime(*rec.TimestampEdited); err == nil {
				editedAt = &t
			}
		}

		driver, text := Normalize(rec.Content)
		msg := &db.Message{
			DiscordID:   rec.ID,
			SessionID:   session.SessionID,
			PostedAt:    postedAt,
			EditedAt:    editedAt,
			RawContent:  rec.Content,
			MessageText: text,
		}
		if driver != "" {
			msg.Driver = &driver
		}
		if rec.Author != nil {
			msg.AuthorID = rec.Author.ID
			msg.AuthorName = rec.Author.Name
			msg.AuthorNickname = rec.Author.Nickname
		}

		created, err := db.UpsertMessage(ctx, i.DB, msg)
		if err != nil {
			telemetry.ImportsFailed.Inc()
			return nil, err
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}

	if !opts.KeepFile && !i.KeepFiles {
		if err := os.Remove(result.Path); err != nil {
			logger.Warn("failed to remove temporary export file",
				slog.String("path", result.Path), slog.Any("err", err))
		}
	}

	summary.Elapsed = i.now().Sub(started)
	telemetry.ImportsSucceeded.Inc()
	telemetry.ImportDuration.Observe(summary.Elapsed.Seconds())
	telemetry.MessagesCreated.Add(float64(summary.Created))
	telemetry.MessagesUpdated.Add(float64(summary.Updated))
	telemetry.MessagesSkipped.Add(float64(summary.SkippedFilter + summary.MissingContent + summary.MissingTimestamp))

	logger.Info("import finished",
		slog.Int("total", summary.Total),
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.SkippedFilter),
		slog.Int("missing_content", summary.MissingContent),
		slog.Int("missing_timestamp", summary.MissingTimestamp),
		slog.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (i *Importer) checkRuntime(started time.Time) error {
	if i.now().Sub(started) > i.budget() {
		return fmt.Errorf("%w of %s; narrow the time window or split the run", ErrRuntimeExceeded, i.budget())
	}
	return nil
}

// exportMessage is the per-record shape of the export payload. Optional
// fields are pointers so missing-field handling stays explicit.
type exportMessage struct {
	ID              string        `json:"id"`
	Content         string        `json:"content"`
	Timestamp       string        `json:"timestamp"`
	TimestampEdited *string       `json:"timestampEdited"`
	Author          *exportAuthor `json:"author"`
}

type exportAuthor struct {
	ID       *string `json:"id"`
	Name     *string `json:"name"`
	Nickname *string `json:"nickname"`
}

// loadExportPayload reads and validates the exported JSON document. A
// missing or non-list top-level "messages" field fails the whole run.
func loadExportPayload(path string) ([]exportMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "cannot read export file", Err: err}
	}
	var payload struct {
		Messages *[]exportMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ParseError{Path: path, Reason: "failed to decode JSON", Err: err}
	}
	if payload.Messages == nil {
		return nil, &ParseError{Path: path, Reason: "JSON payload missing 'messages' array"}
	}
	return *payload.Messages, nil
}

// parseExportTime accepts the ISO 8601 timestamps DiscordChatExporter emits,
// with or without fractional seconds; a bare local timestamp is read as UTC.
func parseExportTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
