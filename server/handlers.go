// Package server exposes the HTTP API: health, sessions, current-state
// highlight lookup, the synchronous import trigger, and /metrics.
package server

import (
	"database/sql"

	"github.com/f1chatter/backend/ingest"
)

// Handlers holds dependencies for all HTTP handlers. Request-scoped state
// (deadlines, correlation ids) travels on r.Context().
type Handlers struct {
	db       *sql.DB
	importer *ingest.Importer
	channel  string
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// The importer is invoked synchronously by the import trigger endpoint.
func NewHandlers(db *sql.DB, importer *ingest.Importer, channelID string) *Handlers {
	return &Handlers{
		db:       db,
		importer: importer,
		channel:  channelID,
	}
}
