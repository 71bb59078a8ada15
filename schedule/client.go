// Package schedule contains minimal helpers to fetch the season event
// schedule from an Ergast-compatible timing API and populate session rows.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultBaseURL is the public Jolpica mirror of the Ergast F1 API.
const DefaultBaseURL = "https://api.jolpi.ca/ergast/f1"

// Client fetches race weekend schedules.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

// SessionTime is a scheduled start instant in the provider's split
// date/time representation.
type SessionTime struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Race is one round of the championship with its per-session start times.
// Sessions absent from the weekend format (e.g. no sprint) stay nil.
type Race struct {
	Round    string `json:"round"`
	RaceName string `json:"raceName"`
	Circuit  struct {
		Location struct {
			Locality string `json:"locality"`
			Country  string `json:"country"`
		} `json:"Location"`
	} `json:"Circuit"`
	Date string `json:"date"`
	Time string `json:"time"`

	FirstPractice  *SessionTime `json:"FirstPractice"`
	SecondPractice *SessionTime `json:"SecondPractice"`
	ThirdPractice  *SessionTime `json:"ThirdPractice"`
	Qualifying     *SessionTime `json:"Qualifying"`
	Sprint         *SessionTime `json:"Sprint"`
	SprintQuali    *SessionTime `json:"SprintQualifying"`
}

// GetSeason fetches the full race schedule for a year.
func (c *Client) GetSeason(ctx context.Context, year int) ([]Race, error) {
	url := fmt.Sprintf("%s/%d/races/?limit=100", c.base(), year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("schedule api status %d: %s", resp.StatusCode, string(b))
	}
	var body struct {
		MRData struct {
			RaceTable struct {
				Races []Race `json:"Races"`
			} `json:"RaceTable"`
		} `json:"MRData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode schedule response: %w", err)
	}
	return body.MRData.RaceTable.Races, nil
}
