package positions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haoxu/ivarb/pkg/models"
)

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "positions.json"))
	got, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}
	if got != nil {
		t.Errorf("LoadAll = %v, want nil for missing file", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	store := NewFileStore(path)

	open := time.Date(2026, time.February, 2, 10, 30, 0, 0, time.UTC)
	in := []*models.Position{
		{
			ID:           "abc-123",
			Instrument:   "copper",
			OpenTime:     open,
			Direction:    models.LongDomesticShortForeign,
			OpenIVDiff:   9.5,
			DomesticCall: "CU2604C103000",
			ExpiryDate:   open.AddDate(0, 2, 0),
			Status:       models.PositionOpen,
		},
	}
	if err := store.RewriteAll(in); err != nil {
		t.Fatalf("RewriteAll returned error: %v", err)
	}

	out, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("LoadAll returned %d positions, want 1", len(out))
	}
	got := out[0]
	if got.ID != "abc-123" || got.Instrument != "copper" {
		t.Errorf("round-tripped position = %+v", got)
	}
	if !got.OpenTime.Equal(open) {
		t.Errorf("OpenTime = %v, want %v", got.OpenTime, open)
	}
	if got.Status != models.PositionOpen {
		t.Errorf("Status = %q, want open", got.Status)
	}
	if got.CloseTime != nil {
		t.Errorf("CloseTime = %v, want nil", got.CloseTime)
	}
}

func TestFileStoreRewriteReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	store := NewFileStore(path)

	if err := store.RewriteAll([]*models.Position{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatalf("first RewriteAll: %v", err)
	}
	if err := store.RewriteAll([]*models.Position{{ID: "a"}}); err != nil {
		t.Fatalf("second RewriteAll: %v", err)
	}

	out, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a" {
		t.Errorf("LoadAll = %v, want single record a", out)
	}
}

func TestFileStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "positions.json")
	store := NewFileStore(path)

	if err := store.RewriteAll([]*models.Position{{ID: "a"}}); err != nil {
		t.Fatalf("RewriteAll returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stat after rewrite: %v", err)
	}
}
