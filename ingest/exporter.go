package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ExportRequest bounds one invocation of the chat export tool.
type ExportRequest struct {
	ChannelID string
	DestPath  string
	// Optional bounds. The CLI only understands whole seconds, so sub-second
	// precision is dropped when the arguments are formatted.
	After  *time.Time
	Before *time.Time
	// Budget is the remaining wall-clock time the subprocess may use.
	Budget time.Duration
}

// ExportResult reports a completed export: where the payload landed plus the
// captured process output for diagnostics.
type ExportResult struct {
	Path   string
	Stdout string
	Stderr string
}

// Exporter abstracts the chat export tool so tests can substitute a canned
// payload for the real subprocess.
type Exporter interface {
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}

// CLIExporter shells out to DiscordChatExporter. An export either fully
// succeeds (exit 0 and the declared file exists) or is wholly failed; there
// are no partial results.
type CLIExporter struct {
	BinPath string
	Token   string
}

// cliTimestampLayout is the whole-second UTC format the export tool accepts
// for --after/--before.
const cliTimestampLayout = "2006-01-02 15:04:05"

func formatCLITimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(cliTimestampLayout)
}

// Export runs the CLI under the request budget. The child process is killed
// when the budget expires.
func (e *CLIExporter) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if e.Token == "" {
		return nil, &ConfigError{Reason: "environment variable DISCORD_OAUTH_TOKEN is required to export messages"}
	}
	if _, err := os.Stat(e.BinPath); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("DiscordChatExporter CLI not found at %s", e.BinPath)}
	}
	if req.Budget <= 0 {
		return nil, &TimeoutError{Budget: req.Budget}
	}

	args := []string{
		"export",
		"-t", e.Token,
		"-c", req.ChannelID,
		"-f", "Json",
		"-o", req.DestPath,
	}
	if req.After != nil {
		args = append(args, "--after", formatCLITimestamp(*req.After))
	}
	if req.Before != nil {
		args = append(args, "--before", formatCLITimestamp(*req.Before))
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Budget)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.BinPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Don't let orphaned grandchildren holding the output pipes keep Wait
	// blocked past the budget.
	cmd.WaitDelay = 100 * time.Millisecond

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{Budget: req.Budget}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExportError{
				Reason:   fmt.Sprintf("exporter exited with code %d", exitErr.ExitCode()),
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return nil, &ConfigError{Reason: fmt.Sprintf("failed to invoke exporter CLI: %v", err)}
	}

	if _, statErr := os.Stat(req.DestPath); statErr != nil {
		// Exit 0 but no file: the tool lied about success.
		return nil, &ExportError{
			Reason: fmt.Sprintf("expected export file %s was not created", req.DestPath),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}

	return &ExportResult{Path: req.DestPath, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
