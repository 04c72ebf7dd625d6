package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"clips", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 2 {
		t.Errorf("migration count = %d, want 2", count)
	}
}

func TestMarkInterruptedClips(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db1.Conn().Exec(`
		INSERT INTO clips (id, call_id, exchange_index, recording_url, start_seconds, end_seconds, status, created_at, updated_at)
		VALUES ('running-clip', 'call-1', 0, 'https://r.example/a.mp3', 1, 2, 'running', ?, ?),
		       ('done-clip', 'call-1', 1, 'https://r.example/a.mp3', 1, 2, 'succeeded', ?, ?)
	`, now, now, now, now)
	if err != nil {
		t.Fatalf("insert clips error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var status, errMsg, stage, updatedAt string
	err = db2.Conn().QueryRow("SELECT status, error, failed_stage, updated_at FROM clips WHERE id = 'running-clip'").
		Scan(&status, &errMsg, &stage, &updatedAt)
	if err != nil {
		t.Fatalf("query clip error = %v", err)
	}

	if status != "failed" {
		t.Errorf("clip status = %s, want failed", status)
	}
	if errMsg != InterruptedError {
		t.Errorf("clip error = %s, want %q", errMsg, InterruptedError)
	}
	if stage != "internal" {
		t.Errorf("failed_stage = %s, want internal", stage)
	}
	if _, err := time.Parse(time.RFC3339, updatedAt); err != nil {
		t.Errorf("updated_at %q is not RFC3339: %v", updatedAt, err)
	}

	err = db2.Conn().QueryRow("SELECT status FROM clips WHERE id = 'done-clip'").Scan(&status)
	if err != nil {
		t.Fatalf("query clip error = %v", err)
	}
	if status != "succeeded" {
		t.Errorf("finished clip status = %s, want succeeded", status)
	}
}
