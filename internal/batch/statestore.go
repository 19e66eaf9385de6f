package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"darkroom/internal/logging"
)

// StateStore persists one JSON snapshot file per batch. Every write replaces
// the whole file atomically via a temp file rename, so readers never observe
// a partially written record.
type StateStore struct {
	dir    string
	logger *slog.Logger
}

// NewStateStore creates a store rooted at dir.
func NewStateStore(dir string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StateStore{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "batchstore"),
	}
}

// Save atomically overwrites the batch's snapshot file.
func (s *StateStore) Save(rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.BatchID) == "" {
		return errors.New("record needs a batch id")
	}
	rec.SchemaVersion = SchemaVersion
	rec.refreshCounts()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch record: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	path := s.path(rec.BatchID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads one batch snapshot. Unknown ids yield (nil, nil).
func (s *StateStore) Load(batchID string) (*Record, error) {
	data, err := os.ReadFile(s.path(batchID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	migrate(&rec)
	return &rec, nil
}

// LoadAll reads every snapshot in the directory. Files that fail to parse are
// logged and skipped so a single corrupt record cannot abort recovery.
func (s *StateStore) LoadAll() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		batchID := strings.TrimSuffix(name, ".json")
		rec, err := s.Load(batchID)
		if err != nil {
			s.logger.Warn("skipping unreadable batch snapshot",
				logging.String(logging.FieldBatchID, batchID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect or remove the file to silence this"))
			continue
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Delete removes a batch's snapshot file. Missing files are not an error.
func (s *StateStore) Delete(batchID string) error {
	err := os.Remove(s.path(batchID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete batch file: %w", err)
	}
	return nil
}

func (s *StateStore) path(batchID string) string {
	return filepath.Join(s.dir, batchID+".json")
}

// migrate upgrades records written by older format versions in place. Version
// 0 files predate explicit counters.
func migrate(rec *Record) {
	if rec.SchemaVersion < 1 {
		rec.refreshCounts()
	}
	rec.SchemaVersion = SchemaVersion
}
