package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/highlight"
	"github.com/f1chatter/backend/ingest"
)

type messageJSON struct {
	DiscordID      string     `json:"discord_id"`
	PostedAt       time.Time  `json:"posted_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Driver         *string    `json:"driver"`
	AuthorName     *string    `json:"author_name"`
	AuthorNickname *string    `json:"author_nickname"`
	Text           string     `json:"text"`
}

func toMessageJSON(m *db.Message) *messageJSON {
	if m == nil {
		return nil
	}
	return &messageJSON{
		DiscordID:      m.DiscordID,
		PostedAt:       m.PostedAt,
		EditedAt:       m.EditedAt,
		Driver:         m.Driver,
		AuthorName:     m.AuthorName,
		AuthorNickname: m.AuthorNickname,
		Text:           m.MessageText,
	}
}

// HandleCurrentState resolves the highlight state for a given instant:
// GET /current_state?timestamp=<ISO8601 with offset>.
// An offset-less timestamp is ambiguous and rejected with 400.
func (h *Handlers) HandleCurrentState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("timestamp")
	if raw == "" {
		http.Error(w, "missing timestamp query parameter", http.StatusBadRequest)
		return
	}
	// RFC 3339 requires an explicit offset, which is exactly the contract here.
	instant, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		http.Error(w, "timestamp must be ISO 8601 with a UTC offset", http.StatusBadRequest)
		return
	}

	result, err := highlight.Select(r.Context(), h.db, instant)
	if err != nil {
		if errors.Is(err, highlight.ErrNotCovered) {
			http.Error(w, "no session covers the given timestamp", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id":        result.Session.SessionID,
		"window_start":      result.WindowStart,
		"window_end":        result.WindowEnd,
		"highlight_message": toMessageJSON(result.Message),
	})
}

// HandleFetchSessionMessages triggers a synchronous import:
// POST /fetch_session_messages?session_id=<id>.
// The response always carries the captured exporter output so failures can be
// diagnosed without shell access.
func (h *Handlers) HandleFetchSessionMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id query parameter", http.StatusBadRequest)
		return
	}

	summary, err := h.importer.Run(r.Context(), ingest.ImportOptions{
		SessionID: sessionID,
		ChannelID: h.channel,
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "unknown session_id", http.StatusNotFound)
			return
		}
		slog.Error("synchronous import failed",
			slog.String("session_id", sessionID), slog.Any("err", err),
			slog.String("component", "http"))
		var stdout, stderr string
		var exportErr *ingest.ExportError
		if errors.As(err, &exportErr) {
			stdout, stderr = exportErr.Stdout, exportErr.Stderr
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":  err.Error(),
			"stdout": stdout,
			"stderr": stderr,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sessionID,
		"stdout":     summary.Stdout,
		"stderr":     summary.Stderr,
		"summary":    summary,
	})
}

// HandleSessions lists sessions: GET /sessions?year=YYYY.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	year := parseIntQuery(r, "year", 0)
	sessions, err := db.ListSessions(r.Context(), h.db, year)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type sessionJSON struct {
		SessionID   string    `json:"session_id"`
		Year        int       `json:"year"`
		RoundNumber int       `json:"round_number"`
		SessionType string    `json:"session_type"`
		StartTime   time.Time `json:"start_time"`
		EndTime     time.Time `json:"end_time"`
		EventName   string    `json:"event_name"`
		Location    string    `json:"location"`
		Country     string    `json:"country"`
	}
	list := make([]sessionJSON, 0, len(sessions))
	for _, s := range sessions {
		list = append(list, sessionJSON{
			SessionID:   s.SessionID,
			Year:        s.Year,
			RoundNumber: s.RoundNumber,
			SessionType: s.SessionType,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			EventName:   s.EventName,
			Location:    s.Location,
			Country:     s.Country,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
