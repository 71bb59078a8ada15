// Command import-messages fetches Discord radio messages via
// DiscordChatExporter and ingests them for one session. Supports full-session
// imports or bounded time window updates.
//
// Usage:
//
//	import-messages --session-id 2024_1_Race [--channel-id ID] [--start RFC3339] [--end RFC3339] [--output-dir DIR] [--keep-file]
//
// Environment Variables:
//
//	DB_DSN: Database connection string
//	DISCORD_OAUTH_TOKEN: Export credential (required)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/f1chatter/backend/config"
	"github.com/f1chatter/backend/db"
	"github.com/f1chatter/backend/ingest"
)

func main() {
	sessionID := flag.String("session-id", "", "Session identifier to associate messages with (required)")
	channelID := flag.String("channel-id", "", "Discord channel ID to export messages from")
	start := flag.String("start", "", "Optional RFC3339 timestamp; only messages at or after this time are imported")
	end := flag.String("end", "", "Optional RFC3339 timestamp; only messages at or before this time are imported")
	outputDir := flag.String("output-dir", "", "Directory where the exported JSON file is written")
	keepFile := flag.Bool("keep-file", false, "Keep the exported JSON file instead of deleting it after import")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env")

	if *sessionID == "" {
		slog.Error("--session-id is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *channelID == "" {
		*channelID = cfg.DiscordChannel
	}
	if *outputDir == "" {
		*outputDir = cfg.ExportDir
	}

	opts := ingest.ImportOptions{
		SessionID: *sessionID,
		ChannelID: *channelID,
		KeepFile:  *keepFile,
	}
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			slog.Error("unable to parse --start timestamp", slog.String("value", *start))
			os.Exit(2)
		}
		opts.Start = &t
	}
	if *end != "" {
		t, err := time.Parse(time.RFC3339, *end)
		if err != nil {
			slog.Error("unable to parse --end timestamp", slog.String("value", *end))
			os.Exit(2)
		}
		opts.End = &t
	}

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	importer := &ingest.Importer{
		DB: database,
		Exporter: &ingest.CLIExporter{
			BinPath: cfg.ExporterPath,
			Token:   cfg.DiscordToken,
		},
		ExportDir: *outputDir,
		Budget:    cfg.ImportBudget,
	}

	summary, err := importer.Run(context.Background(), opts)
	if err != nil {
		slog.Error("import failed", slog.Any("err", err))
		os.Exit(1)
	}

	fmt.Printf("Import summary for session %s:\n", summary.SessionID)
	fmt.Printf("  Messages processed: %d\n", summary.Total)
	fmt.Printf("  Created: %d\n", summary.Created)
	fmt.Printf("  Updated: %d\n", summary.Updated)
	fmt.Printf("  Skipped (filters/time): %d\n", summary.SkippedFilter)
	if summary.MissingContent > 0 {
		fmt.Printf("  Skipped (missing content): %d\n", summary.MissingContent)
	}
	if summary.MissingTimestamp > 0 {
		fmt.Printf("  Skipped (missing timestamp): %d\n", summary.MissingTimestamp)
	}
	fmt.Printf("  Runtime: %.2fs\n", summary.Elapsed.Seconds())
}
