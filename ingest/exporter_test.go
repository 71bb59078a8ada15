package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeFakeExporter drops a shell script standing in for the real CLI.
func writeFakeExporter(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-exporter")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake exporter: %v", err)
	}
	return path
}

func TestCLIExporterMissingToken(t *testing.T) {
	e := &CLIExporter{BinPath: "/bin/true", Token: ""}
	_, err := e.Export(context.Background(), ExportRequest{Budget: time.Second})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Reason, "DISCORD_OAUTH_TOKEN") {
		t.Errorf("reason should name the missing variable, got %q", cfgErr.Reason)
	}
}

func TestCLIExporterMissingBinary(t *testing.T) {
	e := &CLIExporter{BinPath: filepath.Join(t.TempDir(), "no-such-cli"), Token: "tok"}
	_, err := e.Export(context.Background(), ExportRequest{Budget: time.Second})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestCLIExporterExhaustedBudget(t *testing.T) {
	e := &CLIExporter{BinPath: "/bin/true", Token: "tok"}
	_, err := e.Export(context.Background(), ExportRequest{Budget: 0})
	if !errors.Is(err, ErrRuntimeExceeded) {
		t.Fatalf("expected runtime budget error, got %v", err)
	}
}

func TestCLIExporterArgumentsAndSuccess(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.json")
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	bin := writeFakeExporter(t, `printf '%s\n' "$@" > `+argsFile+`
echo "exported" > `+dest+`
echo "5 messages"`)

	after := time.Date(2024, 3, 2, 13, 0, 0, 500_000_000, time.UTC)
	before := time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC)
	e := &CLIExporter{BinPath: bin, Token: "tok"}
	res, err := e.Export(context.Background(), ExportRequest{
		ChannelID: "chan123",
		DestPath:  dest,
		After:     &after,
		Before:    &before,
		Budget:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Path != dest {
		t.Errorf("result path = %q, want %q", res.Path, dest)
	}
	if !strings.Contains(res.Stdout, "5 messages") {
		t.Errorf("stdout not captured: %q", res.Stdout)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(raw)), "\n")
	want := []string{
		"export",
		"-t", "tok",
		"-c", "chan123",
		"-f", "Json",
		"-o", dest,
		"--after", "2024-03-02 13:00:00",
		"--before", "2024-03-02 14:00:00",
	}
	if len(got) != len(want) {
		t.Fatalf("argv length = %d, want %d (%q)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCLIExporterNonZeroExit(t *testing.T) {
	bin := writeFakeExporter(t, `echo "boom" >&2
exit 3`)
	e := &CLIExporter{BinPath: bin, Token: "tok"}
	_, err := e.Export(context.Background(), ExportRequest{
		ChannelID: "chan",
		DestPath:  filepath.Join(t.TempDir(), "out.json"),
		Budget:    5 * time.Second,
	})
	var expErr *ExportError
	if !errors.As(err, &expErr) {
		t.Fatalf("expected ExportError, got %v", err)
	}
	if expErr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", expErr.ExitCode)
	}
	if !strings.Contains(expErr.Stderr, "boom") {
		t.Errorf("stderr not captured: %q", expErr.Stderr)
	}
}

func TestCLIExporterMissingOutputFile(t *testing.T) {
	bin := writeFakeExporter(t, `exit 0`)
	e := &CLIExporter{BinPath: bin, Token: "tok"}
	_, err := e.Export(context.Background(), ExportRequest{
		ChannelID: "chan",
		DestPath:  filepath.Join(t.TempDir(), "never-written.json"),
		Budget:    5 * time.Second,
	})
	var expErr *ExportError
	if !errors.As(err, &expErr) {
		t.Fatalf("expected ExportError for missing file, got %v", err)
	}
	if !strings.Contains(expErr.Reason, "was not created") {
		t.Errorf("reason = %q", expErr.Reason)
	}
}

func TestCLIExporterTimeout(t *testing.T) {
	bin := writeFakeExporter(t, `sleep 5`)
	e := &CLIExporter{BinPath: bin, Token: "tok"}
	start := time.Now()
	_, err := e.Export(context.Background(), ExportRequest{
		ChannelID: "chan",
		DestPath:  filepath.Join(t.TempDir(), "out.json"),
		Budget:    200 * time.Millisecond,
	})
	if !errors.Is(err, ErrRuntimeExceeded) {
		t.Fatalf("expected runtime budget error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("subprocess was not killed promptly, took %s", elapsed)
	}
}

func TestFormatCLITimestamp(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2024, 3, 2, 14, 30, 45, 999_000_000, loc)
	if got := formatCLITimestamp(in); got != "2024-03-02 13:30:45" {
		t.Errorf("formatCLITimestamp = %q, want whole-second UTC", got)
	}
}
