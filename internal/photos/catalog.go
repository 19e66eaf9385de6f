package photos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"darkroom/internal/logging"
)

// CatalogProvider serves unit metadata from a JSON catalog file exported by
// the photo library. The file holds an array of Metadata objects. Reload
// replaces the whole catalog; lookups in between see a consistent snapshot.
type CatalogProvider struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	units map[string]Metadata
}

// NewCatalogProvider loads the catalog at path. A missing file starts empty;
// Reload picks it up once the export appears.
func NewCatalogProvider(path string, logger *slog.Logger) *CatalogProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &CatalogProvider{
		path:   path,
		logger: logging.NewComponentLogger(logger, "catalog"),
		units:  make(map[string]Metadata),
	}
	if err := p.Reload(); err != nil {
		p.logger.Warn("catalog load failed, starting empty",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "submissions will report unknown units until the catalog loads"))
	}
	return p
}

// Reload re-reads the catalog file and swaps the in-memory index.
func (p *CatalogProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read catalog: %w", err)
	}

	var entries []Metadata
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	units := make(map[string]Metadata, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.UnitID) == "" {
			continue
		}
		units[entry.UnitID] = entry
	}

	p.mu.Lock()
	p.units = units
	p.mu.Unlock()

	p.logger.Debug("catalog loaded", logging.Int("units", len(units)))
	return nil
}

// Lookup implements MetadataProvider.
func (p *CatalogProvider) Lookup(_ context.Context, unitID string) (*Metadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	meta, ok := p.units[unitID]
	if !ok {
		return nil, nil
	}
	cp := meta
	return &cp, nil
}
