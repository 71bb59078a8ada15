// Command backend is the main entrypoint for the f1-chatter API and background workers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts background jobs: the live-session message poller and the season
//     schedule refresher.
//   - Exposes the HTTP API with /healthz, /sessions, /current_state,
//     /fetch_session_messages, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/f1chatter/backend/config"
	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/ingest"
	"github.com/f1chatter/backend/schedule"
	"github.com/f1chatter/backend/server"
	"github.com/f1chatter/backend/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateExportReady(); err != nil {
		slog.Warn("discord export disabled", slog.Any("err", err))
	}

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("f1-chatter", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	importer := &ingest.Importer{
		DB: database,
		Exporter: &ingest.CLIExporter{
			BinPath: cfg.ExporterPath,
			Token:   cfg.DiscordToken,
		},
		ExportDir: cfg.ExportDir,
		Budget:    cfg.ImportBudget,
		KeepFiles: cfg.KeepExportFiles,
	}

	// Background jobs: schedule refresh and live message polling.
	if os.Getenv("SCHEDULE_REFRESH") != "0" {
		go schedule.StartRefreshJob(ctx, database, &schedule.Client{BaseURL: cfg.ScheduleBaseURL}, cfg.ScheduleYear, 0)
	}
	if cfg.ValidateExportReady() == nil && os.Getenv("LIVE_POLL") != "0" {
		go ingest.StartLivePollJob(ctx, database, importer, cfg.PollInterval, cfg.PollWindow, cfg.DiscordChannel)
	} else {
		slog.Info("live poll job disabled (missing discord token or LIVE_POLL=0)")
	}

	// HTTP server
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, importer, cfg.DiscordChannel, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
