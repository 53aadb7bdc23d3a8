package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"splitledger/internal/config"
	"splitledger/internal/db"
	"splitledger/internal/logging"
)

// A migration file is an up section, optionally followed by a down section
// after this marker. Only the up section is ever executed; the down half is
// there for operators rolling back by hand.
const downMarker = "-- +migrate Down"

func main() {
	dir := flag.String("dir", "migrations", "directory with .sql migration files")
	flag.Parse()
	logging.Setup()

	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := run(database, *dir); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}
}

func run(database *sqlx.DB, dir string) error {
	if _, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		name := filepath.Base(file)
		var done bool
		if err := database.Get(&done, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name); err != nil {
			return fmt.Errorf("read state of %s: %w", name, err)
		}
		if done {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		for _, stmt := range upStatements(string(content)) {
			if _, err := database.Exec(stmt); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
		if _, err := database.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		slog.Info("applied migration", "file", name)
		applied++
	}
	slog.Info("migrations up to date", "applied", applied, "known", len(files))
	return nil
}

// upStatements extracts the executable statements of a migration: everything
// before the down marker, split on line-ending semicolons, comment lines
// stripped.
func upStatements(content string) []string {
	up, _, _ := strings.Cut(content, downMarker)
	var statements []string
	var current strings.Builder
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}
	for _, line := range strings.Split(up, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(strings.TrimRight(line, " \t"), ";") {
			flush()
		}
	}
	flush()
	return statements
}
