package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	if classify("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	if !errors.Is(classify("op", sql.ErrNoRows), ErrNotFound) {
		t.Fatal("expected ErrNotFound for sql.ErrNoRows")
	}

	err := classify("insert user", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Constraint != "users_email_key" {
		t.Fatalf("expected constraint name, got %v", err)
	}

	other := classify("insert user", context.DeadlineExceeded)
	if errors.Is(other, ErrConflict) || errors.Is(other, ErrNotFound) {
		t.Fatalf("unexpected classification: %v", other)
	}
	if !errors.Is(other, context.DeadlineExceeded) {
		t.Fatal("expected wrapped cause")
	}
}

func TestJSONColumnScan(t *testing.T) {
	var values []string
	if err := asJSON(&values).Scan([]byte(`["a","b"]`)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if len(values) != 2 || values[1] != "b" {
		t.Fatalf("unexpected values: %v", values)
	}

	var links map[string]string
	if err := asJSON(&links).Scan(`{"strava":"x"}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if links["strava"] != "x" {
		t.Fatalf("unexpected links: %v", links)
	}

	if err := asJSON(&values).Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if err := asJSON(&values).Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestApplyMigrationsUsesEmbeddedDir(t *testing.T) {
	original := gooseUp
	defer func() { gooseUp = original }()

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	if err := ApplyMigrations(context.Background(), nil); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	if gotDir != "migrations" {
		t.Fatalf("expected migrations dir, got %q", gotDir)
	}

	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("boom") }
	if err := ApplyMigrations(context.Background(), nil); err == nil {
		t.Fatal("expected error to propagate")
	}
}
