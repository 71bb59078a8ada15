// Command poll-messages runs a single live poll cycle: it looks for the
// currently live session and imports the trailing window of messages. Exits
// immediately when no session is live. Intended for cron-style scheduling.
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
	windowSeconds := flag.Int("window-seconds", 30, "Size of the trailing window to ingest in seconds")
	channelID := flag.String("channel-id", "", "Optional override for the Discord channel id")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env")

	if *windowSeconds <= 0 {
		slog.Error("--window-seconds must be greater than zero")
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
		ExportDir: cfg.ExportDir,
		Budget:    cfg.ImportBudget,
	}

	outcome, err := ingest.Poll(context.Background(), database, importer,
		time.Duration(*windowSeconds)*time.Second, *channelID)
	if err != nil {
		slog.Error("poll failed", slog.Any("err", err))
		os.Exit(1)
	}
	if outcome.Skipped {
		fmt.Println("No live session detected. Poll skipped.")
		return
	}
	fmt.Printf("Imported session %s window [%s, %s]: %d created, %d updated\n",
		outcome.SessionID,
		outcome.WindowStart.Format(time.RFC3339),
		outcome.WindowEnd.Format(time.RFC3339),
		outcome.Summary.Created, outcome.Summary.Updated)
}
