package photos

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestCatalogProviderLookup(t *testing.T) {
	path := writeCatalog(t, t.TempDir(), `[
		{"unit_id":"img-001","quality_score":7.5,"captured_at":"2026-08-01T10:00:00Z","context_class":"wedding","group_id":"shoot-1"},
		{"unit_id":"img-002","captured_at":"2026-08-02T09:30:00Z"},
		{"unit_id":""}
	]`)

	provider := NewCatalogProvider(path, nil)

	meta, err := provider.Lookup(context.Background(), "img-001")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata for img-001")
	}
	if meta.QualityScore == nil || *meta.QualityScore != 7.5 {
		t.Fatalf("unexpected quality score: %v", meta.QualityScore)
	}
	if meta.GroupID != "shoot-1" || meta.ContextClass != "wedding" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	meta, err = provider.Lookup(context.Background(), "img-002")
	if err != nil || meta == nil {
		t.Fatalf("lookup img-002: meta=%v err=%v", meta, err)
	}
	if meta.QualityScore != nil {
		t.Fatalf("expected unscored unit, got %v", *meta.QualityScore)
	}

	meta, err = provider.Lookup(context.Background(), "img-404")
	if err != nil {
		t.Fatalf("lookup unknown: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected nil for unknown unit, got %+v", meta)
	}
}

func TestCatalogProviderMissingFileStartsEmpty(t *testing.T) {
	provider := NewCatalogProvider(filepath.Join(t.TempDir(), "absent.json"), nil)

	meta, err := provider.Lookup(context.Background(), "img-001")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected empty catalog, got %+v", meta)
	}
}

func TestCatalogProviderReloadPicksUpExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	provider := NewCatalogProvider(path, nil)

	writeCatalog(t, dir, `[{"unit_id":"img-010","captured_at":"2026-08-20T12:00:00Z"}]`)
	if err := provider.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	meta, err := provider.Lookup(context.Background(), "img-010")
	if err != nil || meta == nil {
		t.Fatalf("expected unit after reload: meta=%v err=%v", meta, err)
	}
}

func TestCatalogProviderRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, `{"not":"an array"}`)

	provider := NewCatalogProvider(path, nil)
	if err := provider.Reload(); err == nil {
		t.Fatal("expected parse error for malformed catalog")
	}
}
