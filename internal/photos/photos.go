package photos

import (
	"context"
	"time"
)

// Metadata describes a submission unit as reported by the photo catalog.
// QualityScore is nil until analysis has scored the photo.
type Metadata struct {
	UnitID       string    `json:"unit_id"`
	QualityScore *float64  `json:"quality_score,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	ContextClass string    `json:"context_class,omitempty"`
	GroupID      string    `json:"group_id,omitempty"`
}

// Age returns how long ago the photo entered the catalog, relative to now.
func (m Metadata) Age(now time.Time) time.Duration {
	if m.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(m.CapturedAt)
}

// MetadataProvider resolves unit ids against the external photo catalog.
// Lookup returns (nil, nil) for unknown ids; errors are reserved for catalog
// communication failures.
type MetadataProvider interface {
	Lookup(ctx context.Context, unitID string) (*Metadata, error)
}
