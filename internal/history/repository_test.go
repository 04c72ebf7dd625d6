package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipgen/internal/db"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func newRecord(callID string, idx int) *Record {
	return &Record{
		CallID:        callID,
		ExchangeIndex: idx,
		RecordingURL:  "https://recordings.example/call.mp3",
		StartSeconds:  10.5,
		EndSeconds:    25.3,
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := newRecord("call-1", 2)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create() should assign an id")
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, StatusRunning)
	}
	if got.CallID != "call-1" || got.ExchangeIndex != 2 {
		t.Errorf("got %s/%d, want call-1/2", got.CallID, got.ExchangeIndex)
	}
	if got.StartSeconds != 10.5 || got.EndSeconds != 25.3 {
		t.Errorf("window = %v-%v", got.StartSeconds, got.EndSeconds)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	got, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

func TestMarkSucceeded(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := newRecord("call-1", 0)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.MarkSucceeded(ctx, rec.ID, "call-1_0_abcd1234.mp4", "https://cdn.example/call-1_0_abcd1234.mp4", 4096, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("MarkSucceeded() error = %v", err)
	}

	got, _ := repo.Get(ctx, rec.ID)
	if got.Status != StatusSucceeded {
		t.Errorf("Status = %q, want %q", got.Status, StatusSucceeded)
	}
	if got.StorageKey != "call-1_0_abcd1234.mp4" {
		t.Errorf("StorageKey = %q", got.StorageKey)
	}
	if got.PublicURL != "https://cdn.example/call-1_0_abcd1234.mp4" {
		t.Errorf("PublicURL = %q", got.PublicURL)
	}
	if got.SizeBytes != 4096 {
		t.Errorf("SizeBytes = %d, want 4096", got.SizeBytes)
	}
	if got.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", got.DurationMS)
	}
}

func TestMarkFailed(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := newRecord("call-1", 0)
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.MarkFailed(ctx, rec.ID, "stage", "slice", "FFmpeg slice failed: 404", time.Second); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	got, _ := repo.Get(ctx, rec.ID)
	if got.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, StatusFailed)
	}
	if got.FailureKind != "stage" || got.FailedStage != "slice" {
		t.Errorf("failure = %s/%s, want stage/slice", got.FailureKind, got.FailedStage)
	}
	if got.Error != "FFmpeg slice failed: 404" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestMarkFailed_UnknownID(t *testing.T) {
	repo := setupTestRepo(t)
	if err := repo.MarkFailed(context.Background(), "missing", "stage", "slice", "x", 0); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, callID := range []string{"call-a", "call-b", "call-a", "call-a"} {
		rec := newRecord(callID, i)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("List() returned %d records, want 4", len(all))
	}
	if all[0].ExchangeIndex != 3 {
		t.Errorf("newest record first: got exchange %d, want 3", all[0].ExchangeIndex)
	}

	forA, err := repo.List(ctx, "call-a", 2)
	if err != nil {
		t.Fatalf("List(call-a) error = %v", err)
	}
	if len(forA) != 2 {
		t.Fatalf("List(call-a, 2) returned %d records, want 2", len(forA))
	}
	for _, rec := range forA {
		if rec.CallID != "call-a" {
			t.Errorf("unexpected call id %q", rec.CallID)
		}
	}
	if forA[0].ExchangeIndex != 3 || forA[1].ExchangeIndex != 2 {
		t.Errorf("order = %d,%d, want 3,2", forA[0].ExchangeIndex, forA[1].ExchangeIndex)
	}
}
