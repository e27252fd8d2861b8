package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveUpAndDownSections(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{5})_[a-z0-9_]+\.sql$`)
	seen := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("migration %s does not follow NNNNN_name.sql", name)
		}
		if seen[match[1]] {
			t.Fatalf("duplicate migration version %s", match[1])
		}
		seen[match[1]] = true

		raw, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(raw)
		up := strings.Index(body, "-- +goose Up")
		down := strings.Index(body, "-- +goose Down")
		if up < 0 || down < 0 || down < up {
			t.Fatalf("migration %s must contain goose Up then Down sections", name)
		}
	}

	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}
}

func TestInitialMigrationDeclaresUniqueness(t *testing.T) {
	raw, err := fs.ReadFile(migrationsFS, "migrations/00001_init.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	body := string(raw)
	for _, index := range []string{"users_email_key", "users_username_key", "profiles_user_id_key"} {
		if !strings.Contains(body, "CREATE UNIQUE INDEX "+index) {
			t.Fatalf("expected unique index %s", index)
		}
	}
	if !strings.Contains(body, "PRIMARY KEY (message_id, emoji, user_id)") {
		t.Fatal("expected one reaction per (message, emoji, user)")
	}
}
