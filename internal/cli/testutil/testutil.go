// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	// duckdb driver for seeding the test warehouse.
	_ "github.com/marcboeker/go-duckdb"
)

// Project is a temporary LeapExplore project.
type Project struct {
	Dir         string
	ConfigPath  string
	HistoryPath string
	Warehouse   string
}

// ProjectConfig is the leapexplore.yaml written by SetupTestProject.
const ProjectConfig = `history:
  path: history.db
  max_entries: 100
explore:
  default_timezone: utc
  query_timeout: 10s
datasources:
  - uid: warehouse
    name: Warehouse
    type: duckdb
    database: warehouse.duckdb
    is_default: true
  - uid: scratch
    name: Scratch
    type: duckdb
    database: ":memory:"
`

// SetupTestProject creates a temporary project with a config file and a
// DuckDB warehouse holding an orders table of three rows.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()

	dir := t.TempDir()
	p := &Project{
		Dir:         dir,
		ConfigPath:  filepath.Join(dir, "leapexplore.yaml"),
		HistoryPath: filepath.Join(dir, "history.db"),
		Warehouse:   filepath.Join(dir, "warehouse.duckdb"),
	}
	if err := os.WriteFile(p.ConfigPath, []byte(ProjectConfig), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	db, err := sql.Open("duckdb", p.Warehouse)
	if err != nil {
		t.Fatalf("failed to open warehouse: %v", err)
	}
	defer func() { _ = db.Close() }()

	seed := `
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer VARCHAR NOT NULL,
			amount DOUBLE NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		INSERT INTO orders VALUES
			(1, 'alice', 10.50, TIMESTAMP '2024-03-14 09:00:00'),
			(2, 'bob', 20.00, TIMESTAMP '2024-03-14 10:00:00'),
			(3, 'carol, jr', 5.25, TIMESTAMP '2024-03-13 18:30:00');
	`
	if _, err := db.ExecContext(context.Background(), seed); err != nil {
		t.Fatalf("failed to seed warehouse: %v", err)
	}
	return p
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}
