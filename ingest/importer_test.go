package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/telemetry"
	"github.com/f1chatter/backend/testutil"
)

// fakeExporter writes a canned payload to the requested destination and
// optionally advances a fake clock to simulate a slow subprocess.
type fakeExporter struct {
	payload  []exportMessage
	rawBody  string
	consume  time.Duration
	clock    *fakeClock
	err      error
	lastReq  ExportRequest
	runCount int
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func (f *fakeExporter) Export(_ context.Context, req ExportRequest) (*ExportResult, error) {
	f.lastReq = req
	f.runCount++
	if f.clock != nil && f.consume > 0 {
		f.clock.advance(f.consume)
	}
	if f.err != nil {
		return nil, f.err
	}
	body := f.rawBody
	if body == "" {
		data, err := json.Marshal(struct {
			Messages []exportMessage `json:"messages"`
		}{Messages: f.payload})
		if err != nil {
			return nil, err
		}
		body = string(data)
	}
	if err := os.WriteFile(req.DestPath, []byte(body), 0o644); err != nil {
		return nil, err
	}
	return &ExportResult{Path: req.DestPath, Stdout: "exported", Stderr: ""}, nil
}

func strPtr(s string) *string { return &s }

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.Counter.GetValue()
}

func seedSession(t *testing.T, dbc *sql.DB, id string, start, end time.Time) *db.Session {
	t.Helper()
	s := &db.Session{
		SessionID:   id,
		Year:        2024,
		RoundNumber: 3,
		SessionType: "Race",
		StartTime:   start,
		EndTime:     end,
		EventName:   "Australian Grand Prix",
		Location:    "Melbourne",
		Country:     "Australia",
	}
	if _, err := db.UpsertSession(context.Background(), dbc, s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

func newTestImporter(t *testing.T, dbc *sql.DB, exp Exporter, clock *fakeClock) *Importer {
	t.Helper()
	imp := &Importer{
		DB:        dbc,
		Exporter:  exp,
		ExportDir: t.TempDir(),
	}
	if clock != nil {
		imp.Now = clock.now
	}
	return imp
}

func TestImporterCreatesAndCounts(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	exp := &fakeExporter{payload: []exportMessage{
		{
			ID:        "100",
			Content:   ":studio_microphone: `Leclerc` Box this lap.",
			Timestamp: start.Add(10 * time.Minute).Format(time.RFC3339),
			Author:    &exportAuthor{ID: strPtr("u1"), Name: strPtr("fom_bot")},
		},
		{
			ID:        "101",
			Content:   "plain chatter with no tag",
			Timestamp: start.Add(11 * time.Minute).Format(time.RFC3339),
		},
		{ID: "102", Content: "", Timestamp: start.Add(12 * time.Minute).Format(time.RFC3339)},
		{ID: "103", Content: "no timestamp at all"},
		{
			ID:        "104",
			Content:   "posted before the session",
			Timestamp: start.Add(-time.Hour).Format(time.RFC3339),
		},
	}}
	imp := newTestImporter(t, dbc, exp, nil)

	summary, err := imp.Run(context.Background(), ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 5 || summary.Created != 2 || summary.Updated != 0 {
		t.Errorf("summary = %+v, want total=5 created=2 updated=0", summary)
	}
	if summary.MissingContent != 1 || summary.MissingTimestamp != 1 || summary.SkippedFilter != 1 {
		t.Errorf("skip counters = %+v", summary)
	}

	msg, err := db.GetMessage(context.Background(), dbc, "100")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.Driver == nil || *msg.Driver != "Leclerc" {
		t.Errorf("driver = %v, want Leclerc", msg.Driver)
	}
	if msg.MessageText != "`Leclerc` Box this lap." {
		t.Errorf("message_text = %q", msg.MessageText)
	}
	if msg.SessionID != "2024_3_Race" {
		t.Errorf("session_id = %q", msg.SessionID)
	}
}

func TestImporterIdempotentRerun(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	exp := &fakeExporter{payload: []exportMessage{
		{ID: "200", Content: "hello", Timestamp: start.Add(time.Minute).Format(time.RFC3339)},
	}}
	imp := newTestImporter(t, dbc, exp, nil)
	opts := ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan"}

	first, err := imp.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Created != 1 || first.Updated != 0 {
		t.Errorf("first run = %+v", first)
	}

	second, err := imp.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Errorf("rerun = %+v, want created=0 updated=1", second)
	}
	count, err := db.CountMessages(context.Background(), dbc, "2024_3_Race")
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 1 {
		t.Errorf("message count after rerun = %d, want 1", count)
	}
}

func TestImporterLastWriteWins(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	exp := &fakeExporter{payload: []exportMessage{
		{ID: "300", Content: "original text", Timestamp: start.Add(time.Minute).Format(time.RFC3339)},
	}}
	imp := newTestImporter(t, dbc, exp, nil)
	opts := ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan"}
	if _, err := imp.Run(context.Background(), opts); err != nil {
		t.Fatalf("first run: %v", err)
	}

	exp.payload[0].Content = "edited text"
	if _, err := imp.Run(context.Background(), opts); err != nil {
		t.Fatalf("second run: %v", err)
	}

	msg, err := db.GetMessage(context.Background(), dbc, "300")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.RawContent != "edited text" {
		t.Errorf("raw_content = %q, want the later export to win", msg.RawContent)
	}
}

func TestImporterWindowOverride(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	exp := &fakeExporter{payload: []exportMessage{
		{ID: "400", Content: "inside override", Timestamp: start.Add(5 * time.Minute).Format(time.RFC3339)},
		{ID: "401", Content: "outside override", Timestamp: start.Add(30 * time.Minute).Format(time.RFC3339)},
	}}
	imp := newTestImporter(t, dbc, exp, nil)

	winStart := start
	winEnd := start.Add(10 * time.Minute)
	summary, err := imp.Run(context.Background(), ImportOptions{
		SessionID: "2024_3_Race", ChannelID: "chan", Start: &winStart, End: &winEnd,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Created != 1 || summary.SkippedFilter != 1 {
		t.Errorf("summary = %+v, want one created and one filtered", summary)
	}
	if exp.lastReq.After == nil || !exp.lastReq.After.Equal(winStart) {
		t.Errorf("exporter --after = %v, want %v", exp.lastReq.After, winStart)
	}
	if exp.lastReq.Before == nil || !exp.lastReq.Before.Equal(winEnd) {
		t.Errorf("exporter --before = %v, want %v", exp.lastReq.Before, winEnd)
	}
}

func TestImporterInvalidWindow(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	imp := newTestImporter(t, dbc, &fakeExporter{}, nil)
	winStart := start.Add(time.Hour)
	winEnd := start
	failedBefore := counterValue(t, telemetry.ImportsFailed)
	_, err := imp.Run(context.Background(), ImportOptions{
		SessionID: "2024_3_Race", ChannelID: "chan", Start: &winStart, End: &winEnd,
	})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if got := counterValue(t, telemetry.ImportsFailed) - failedBefore; got != 1 {
		t.Errorf("imports failed delta = %v, want 1", got)
	}
}

func TestImporterUnknownSession(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	imp := newTestImporter(t, dbc, &fakeExporter{}, nil)
	startedBefore := counterValue(t, telemetry.ImportsStarted)
	failedBefore := counterValue(t, telemetry.ImportsFailed)
	_, err := imp.Run(context.Background(), ImportOptions{SessionID: "2099_1_Race", ChannelID: "chan"})
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := counterValue(t, telemetry.ImportsStarted) - startedBefore; got != 1 {
		t.Errorf("imports started delta = %v, want 1", got)
	}
	if got := counterValue(t, telemetry.ImportsFailed) - failedBefore; got != 1 {
		t.Errorf("imports failed delta = %v, want 1 (early failures must count)", got)
	}
}

func TestImporterSlowExportExceedsBudget(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	clock := &fakeClock{t: start.Add(3 * time.Hour)}
	exp := &fakeExporter{
		clock:   clock,
		consume: 125 * time.Second,
		payload: []exportMessage{
			{ID: "500", Content: "too late", Timestamp: start.Add(time.Minute).Format(time.RFC3339)},
		},
	}
	imp := newTestImporter(t, dbc, exp, clock)

	_, err := imp.Run(context.Background(), ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan"})
	if !errors.Is(err, ErrRuntimeExceeded) {
		t.Fatalf("expected ErrRuntimeExceeded, got %v", err)
	}
	count, cerr := db.CountMessages(context.Background(), dbc, "2024_3_Race")
	if cerr != nil {
		t.Fatalf("CountMessages: %v", cerr)
	}
	if count != 0 {
		t.Errorf("budget overrun must abort before any writes, got %d messages", count)
	}
}

func TestImporterMalformedPayload(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	for name, body := range map[string]string{
		"not json":         "this is not json",
		"missing messages": `{"guild": {"name": "f1"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			imp := newTestImporter(t, dbc, &fakeExporter{rawBody: body}, nil)
			_, err := imp.Run(context.Background(), ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan"})
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestImporterRemovesArtifactByDefault(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	testutil.ResetTables(t, dbc)

	start := time.Date(2024, 3, 24, 13, 0, 0, 0, time.UTC)
	seedSession(t, dbc, "2024_3_Race", start, start.Add(2*time.Hour))

	exp := &fakeExporter{payload: []exportMessage{
		{ID: "600", Content: "keep or toss", Timestamp: start.Add(time.Minute).Format(time.RFC3339)},
	}}
	imp := newTestImporter(t, dbc, exp, nil)
	if _, err := imp.Run(context.Background(), ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(exp.lastReq.DestPath); !os.IsNotExist(err) {
		t.Errorf("export artifact %s should be removed after ingestion", exp.lastReq.DestPath)
	}

	if _, err := imp.Run(context.Background(), ImportOptions{SessionID: "2024_3_Race", ChannelID: "chan", KeepFile: true}); err != nil {
		t.Fatalf("Run with KeepFile: %v", err)
	}
	if _, err := os.Stat(exp.lastReq.DestPath); err != nil {
		t.Errorf("export artifact should survive with KeepFile: %v", err)
	}
}

func TestLoadExportPayload(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	records, err := loadExportPayload(write("ok.json", `{"messages": [{"id": "1", "content": "hi", "timestamp": "2024-03-24T13:00:00Z"}]}`))
	if err != nil {
		t.Fatalf("valid payload: %v", err)
	}
	if len(records) != 1 || records[0].ID != "1" {
		t.Errorf("records = %+v", records)
	}

	if _, err := loadExportPayload(write("empty.json", `{"messages": []}`)); err != nil {
		t.Errorf("empty list should be valid: %v", err)
	}

	var parseErr *ParseError
	if _, err := loadExportPayload(write("missing.json", `{}`)); !errors.As(err, &parseErr) {
		t.Errorf("missing messages field should be ParseError, got %v", err)
	}
	if _, err := loadExportPayload(write("garbage.json", `not json`)); !errors.As(err, &parseErr) {
		t.Errorf("garbage should be ParseError, got %v", err)
	}
	if _, err := loadExportPayload(filepath.Join(dir, "absent.json")); !errors.As(err, &parseErr) {
		t.Errorf("unreadable file should be ParseError, got %v", err)
	}
}

func TestParseExportTime(t *testing.T) {
	want := time.Date(2024, 3, 24, 13, 0, 5, 0, time.UTC)
	for _, in := range []string{
		"2024-03-24T13:00:05Z",
		"2024-03-24T14:00:05+01:00",
		"2024-03-24T13:00:05",
		"2024-03-24 13:00:05",
	} {
		got, err := parseExportTime(in)
		if err != nil {
			t.Errorf("parseExportTime(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseExportTime(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseExportTime("yesterday"); err == nil {
		t.Error("expected error for unparsable timestamp")
	}
}

func TestImportSummaryJSONShape(t *testing.T) {
	data, err := json.Marshal(&ImportSummary{SessionID: "2024_3_Race", Total: 2, Created: 1, Updated: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{"session_id", "total", "created", "updated", "skipped_filter"} {
		if !json.Valid(data) || !containsKey(data, key) {
			t.Errorf("summary JSON missing key %q: %s", key, data)
		}
	}
}

func containsKey(data []byte, key string) bool {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
