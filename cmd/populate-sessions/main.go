// Command populate-sessions fetches the season schedule from the timing API
// and upserts session rows. By default it targets the current year.
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
	"github.com/f1chatter/backend/schedule"
)

func main() {
	year := flag.Int("year", 0, "Year to fetch sessions for (default: current year)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	target := *year
	if target == 0 {
		target = cfg.ScheduleYear
	}
	if target == 0 {
		target = time.Now().UTC().Year()
	}

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	client := &schedule.Client{BaseURL: cfg.ScheduleBaseURL}
	summary, err := schedule.PopulateSessions(context.Background(), database, client, target)
	if err != nil {
		slog.Error("populate failed", slog.Any("err", err))
		os.Exit(1)
	}

	fmt.Printf("Summary for year %d:\n", target)
	fmt.Printf("  Total sessions processed: %d\n", summary.Total)
	fmt.Printf("  Created: %d\n", summary.Created)
	fmt.Printf("  Updated: %d\n", summary.Updated)
	if summary.Skipped > 0 {
		fmt.Printf("  Skipped (not scheduled): %d\n", summary.Skipped)
	}
	if summary.Errors > 0 {
		fmt.Printf("  Errors: %d\n", summary.Errors)
	}
}
