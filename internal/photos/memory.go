package photos

import (
	"context"
	"sync"
)

// MemoryProvider is an in-memory MetadataProvider used by tests and local
// development runs where no photo catalog is attached.
type MemoryProvider struct {
	mu    sync.RWMutex
	units map[string]Metadata
}

// NewMemoryProvider returns an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{units: make(map[string]Metadata)}
}

// Put registers or replaces a unit's metadata.
func (p *MemoryProvider) Put(meta Metadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units[meta.UnitID] = meta
}

// Lookup implements MetadataProvider.
func (p *MemoryProvider) Lookup(_ context.Context, unitID string) (*Metadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	meta, ok := p.units[unitID]
	if !ok {
		return nil, nil
	}
	cp := meta
	return &cp, nil
}
