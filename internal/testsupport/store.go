package testsupport

import (
	"testing"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/dispatch"
	"darkroom/internal/photos"
)

// MustOpenJobStore opens a dispatch.Store for tests and registers cleanup.
func MustOpenJobStore(t testing.TB, cfg *config.Config) *dispatch.Store {
	t.Helper()

	store, err := dispatch.Open(cfg)
	if err != nil {
		t.Fatalf("dispatch.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeededProvider returns an in-memory metadata provider preloaded with the
// given unit ids. Units get a mid-range quality score and a recent capture
// time so priority math stays predictable.
func SeededProvider(unitIDs ...string) *photos.MemoryProvider {
	provider := photos.NewMemoryProvider()
	quality := 3.0
	for _, id := range unitIDs {
		provider.Put(photos.Metadata{
			UnitID:       id,
			QualityScore: &quality,
			CapturedAt:   time.Now().UTC(),
			ContextClass: "portrait",
		})
	}
	return provider
}
