package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockScheduleServer mocks the Ergast-compatible schedule API.
type MockScheduleServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockScheduleServer creates a new mock schedule provider server.
func NewMockScheduleServer(t *testing.T) *MockScheduleServer {
	t.Helper()
	m := &MockScheduleServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockSeason registers a season response with the given races under
// /<year>/races/.
func (m *MockScheduleServer) MockSeason(year string, races []map[string]any) {
	m.Handlers["/"+year+"/races/"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"MRData": map[string]any{
				"RaceTable": map[string]any{
					"Races": races,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
