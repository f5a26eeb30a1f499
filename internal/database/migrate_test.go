package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// authEventColumns are the columns the audit repository reads and writes.
// Keep in sync with internal/plugins/audit/repository.go.
var authEventColumns = []string{
	"id", "subject_id", "username", "action", "outcome",
	"entry", "remote_ip", "detail", "created_at",
}

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

func upFiles(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(migrationsDir(t), "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration files found")
	}
	return files
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	for _, up := range upFiles(t) {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_Sequential ensures versions start at 1 and have no gaps,
// so golang-migrate never sees two files with the same version.
func TestMigrations_Sequential(t *testing.T) {
	for i, f := range upFiles(t) {
		want := fmt.Sprintf("%06d_", i+1)
		if !strings.HasPrefix(filepath.Base(f), want) {
			t.Errorf("%s: expected version prefix %s", filepath.Base(f), want)
		}
	}
}

// TestMigrations_AuthEventColumns checks that the auth_events table
// defines every column the audit repository uses.
func TestMigrations_AuthEventColumns(t *testing.T) {
	createPattern := regexp.MustCompile(`(?is)CREATE TABLE[^(]*auth_events\s*\((.*)\)\s*ENGINE`)

	var body string
	for _, f := range upFiles(t) {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		if m := createPattern.FindStringSubmatch(string(data)); m != nil {
			body = m[1]
			break
		}
	}
	if body == "" {
		t.Fatal("no migration creates auth_events")
	}

	defined := map[string]bool{}
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "PRIMARY", "INDEX", "KEY", "UNIQUE", "CONSTRAINT":
			continue
		}
		defined[strings.ToLower(fields[0])] = true
	}

	for _, col := range authEventColumns {
		if !defined[col] {
			t.Errorf("auth_events is missing column %q", col)
		}
	}
}
