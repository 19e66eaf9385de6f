package batch_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"darkroom/internal/batch"
	"darkroom/internal/logging"
)

func newRecord(id string, units ...string) *batch.Record {
	return &batch.Record{
		BatchID:      id,
		UnitIDs:      units,
		ProcessedIDs: []string{},
		FailedIDs:    []string{},
		Status:       batch.StatusRunning,
		CreatedAt:    time.Now().UTC(),
		TaskHandles:  []string{},
	}
}

func TestStateStoreSaveLoadRoundTrip(t *testing.T) {
	store := batch.NewStateStore(t.TempDir(), logging.NewNop())

	rec := newRecord("batch-1", "photo-1", "photo-2")
	rec.GroupID = "wedding-42"
	rec.ProcessedIDs = []string{"photo-1"}
	rec.Config = json.RawMessage(`{"profile":"raw"}`)
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("batch-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.GroupID != "wedding-42" || len(got.UnitIDs) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.TotalUnits != 2 || got.ProcessedCount != 1 || got.FailedCount != 0 {
		t.Fatalf("counts not refreshed on save: %+v", got)
	}
	if string(got.Config) != `{"profile":"raw"}` {
		t.Fatalf("Config = %s", got.Config)
	}
}

func TestStateStoreLoadUnknownIDReturnsNil(t *testing.T) {
	store := batch.NewStateStore(t.TempDir(), logging.NewNop())

	got, err := store.Load("missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestStateStoreSaveIsAtomicReplacement(t *testing.T) {
	dir := t.TempDir()
	store := batch.NewStateStore(dir, logging.NewNop())

	rec := newRecord("batch-1", "photo-1")
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.Status = batch.StatusPaused
	if err := store.Save(rec); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "batch-1.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}
	got, _ := store.Load("batch-1")
	if got.Status != batch.StatusPaused {
		t.Fatalf("Status = %s, want paused", got.Status)
	}
}

func TestStateStoreLoadAllSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := batch.NewStateStore(dir, logging.NewNop())

	if err := store.Save(newRecord("batch-1", "photo-1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "batch-2.json"), []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	records, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 || records[0].BatchID != "batch-1" {
		t.Fatalf("LoadAll returned %d records, want the single intact one", len(records))
	}
}

func TestStateStoreDelete(t *testing.T) {
	store := batch.NewStateStore(t.TempDir(), logging.NewNop())

	if err := store.Save(newRecord("batch-1", "photo-1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete("batch-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Load("batch-1"); got != nil {
		t.Fatal("record survived delete")
	}

	// Deleting a missing snapshot is not an error.
	if err := store.Delete("batch-1"); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
}

func TestStateStoreMigratesVersionZeroFiles(t *testing.T) {
	dir := t.TempDir()
	store := batch.NewStateStore(dir, logging.NewNop())

	legacy := []byte(`{
  "batch_id": "batch-legacy",
  "unit_ids": ["photo-1", "photo-2"],
  "processed_ids": ["photo-1"],
  "failed_ids": [],
  "status": "paused",
  "created_at": "2026-01-05T10:00:00Z"
}`)
	if err := os.WriteFile(filepath.Join(dir, "batch-legacy.json"), legacy, 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	got, err := store.Load("batch-legacy")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SchemaVersion != batch.SchemaVersion {
		t.Fatalf("SchemaVersion = %d, want %d", got.SchemaVersion, batch.SchemaVersion)
	}
	if got.TotalUnits != 2 || got.ProcessedCount != 1 {
		t.Fatalf("legacy counts not derived: %+v", got)
	}
}
