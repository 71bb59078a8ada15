// Package ingest implements the Discord message ingestion pipeline: the
// export subprocess, the import protocol, and the live-session poller.
package ingest

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrInvalidWindow flags a resolved filter window whose start is after its end.
	ErrInvalidWindow = errors.New("resolved time window has start after end")
	// ErrRuntimeExceeded flags an import run that blew past its wall-clock budget.
	ErrRuntimeExceeded = errors.New("import exceeded maximum runtime")
)

// ConfigError is an operator problem (missing credential, missing export
// binary). Fatal; retrying without fixing the environment is pointless.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Reason }

// TimeoutError indicates the export subprocess outlived the remaining runtime
// budget and was killed. Safe to retry later.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("export subprocess exceeded the %s runtime budget", e.Budget)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrRuntimeExceeded }

// ExportError carries the diagnostics of a failed export run: exit code plus
// captured output, so callers can report it without re-running the tool.
type ExportError struct {
	Reason   string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExportError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("export failed (exit %d): %s: %s", e.ExitCode, e.Reason, e.Stderr)
	}
	return fmt.Sprintf("export failed (exit %d): %s", e.ExitCode, e.Reason)
}

// ParseError flags a malformed export payload. The whole run is abandoned; no
// partial ingestion happens from an unparsable file.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
