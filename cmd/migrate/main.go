package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pscheid92/aarelay/internal/adapter/postgres"
)

func main() {
	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		dryRun      = flag.Bool("dry-run", false, "Only report the current and latest schema version")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", sanitizeURL(*databaseURL))

	if !*dryRun {
		start := time.Now()
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		slog.Info("Migration complete", "duration_ms", time.Since(start).Milliseconds())
	}

	current, latest, err := postgres.MigrationStatus(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	slog.Info("Schema version", "current", current, "latest", latest, "dry_run", *dryRun)
	if current != latest {
		slog.Warn("Schema is behind", "pending", latest-current)
	}
}

// sanitizeURL hides the password in a database URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid url"
	}
	return u.Redacted()
}
