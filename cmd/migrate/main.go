// Command migrate applies the journey schema migrations and verifies the
// session record tables afterwards.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/migrate [dir]
//	DATABASE_URL=postgres://... go run ./cmd/migrate --status
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// recordTables are the tables the journey service reads and writes; the run
// fails loudly if any of them is missing once migrations have been applied.
var recordTables = []string{"journey_sessions", "journey_page_visits"}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	statusOnly := false
	for _, a := range os.Args[1:] {
		if a == "--status" || a == "--list" {
			statusOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if statusOnly {
		reportStatus(db)
		return
	}

	if err := applyDir(db, dir); err != nil {
		log.Fatal(err)
	}
	if err := verifySchema(db); err != nil {
		log.Fatalf("schema verification FAILED: %v", err)
	}
	log.Println("Schema verified: session record tables are present")
}

// applyDir runs every .sql file in dir in name order, each in its own
// transaction so one broken file does not leave a half-applied migration.
func applyDir(db *sql.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(content); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Migrations done: %d OK, %d errors", okCount, errCount)
	if errCount > 0 {
		return fmt.Errorf("%d migration(s) failed", errCount)
	}
	return nil
}

// verifySchema confirms every record table exists.
func verifySchema(db *sql.DB) error {
	for _, table := range recordTables {
		var ok bool
		err := db.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname='public' AND tablename=$1)", table,
		).Scan(&ok)
		if err != nil {
			return fmt.Errorf("check %s: %w", table, err)
		}
		if !ok {
			return fmt.Errorf("table %s does not exist", table)
		}
	}
	return nil
}

// reportStatus prints each record table with its row count, or MISSING.
func reportStatus(db *sql.DB) {
	for _, table := range recordTables {
		var ok bool
		if err := db.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname='public' AND tablename=$1)", table,
		).Scan(&ok); err != nil {
			log.Fatalf("check %s: %v", table, err)
		}
		if !ok {
			fmt.Printf("  %-22s MISSING\n", table)
			continue
		}
		var count int
		// Table names come from the fixed list above, never from input.
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			log.Fatalf("count %s: %v", table, err)
		}
		fmt.Printf("  %-22s %d rows\n", table, count)
	}
}
