package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveAndContentPath(t *testing.T) {
	s := newTestStore(t)

	data := []byte("pdf bytes")
	path, err := s.Save(42, "lezione.pdf", data)
	if err != nil {
		t.Fatal(err)
	}

	if !s.Has(42) {
		t.Fatal("Has(42) = false after save")
	}
	got := s.ContentPath(42)
	if got != path {
		t.Fatalf("ContentPath = %q, want %q", got, path)
	}
	onDisk, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Fatalf("cached bytes differ: %q", onDisk)
	}
}

func TestSaveOverwriteAdvancesTimestamp(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(7, "a.txt", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	first, err := s.savedAt(s.itemDir(7))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(7, "a.txt", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	second, err := s.savedAt(s.itemDir(7))
	if err != nil {
		t.Fatal(err)
	}

	if second.Before(first) {
		t.Fatalf("timestamp went backwards: %v -> %v", first, second)
	}
	onDisk, _ := os.ReadFile(s.ContentPath(7))
	if string(onDisk) != "v2" {
		t.Fatalf("content not overwritten: %q", onDisk)
	}
}

func TestHasIgnoresMarkerOnlyDir(t *testing.T) {
	s := newTestStore(t)

	d := s.itemDir(9)
	if err := os.MkdirAll(d, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d, tsFile), []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		t.Fatal(err)
	}

	if s.Has(9) {
		t.Fatal("Has = true for a directory holding only the marker")
	}
	if s.ContentPath(9) != "" {
		t.Fatal("ContentPath should be empty for a marker-only directory")
	}
}

func TestLocalURL(t *testing.T) {
	s := newTestStore(t)

	if s.LocalURL(1) != "" {
		t.Fatal("LocalURL should be empty before save")
	}
	if _, err := s.Save(1, "slides.pptx", []byte("x")); err != nil {
		t.Fatal(err)
	}
	want := "/local/classeviva_didactics/1/slides.pptx"
	if got := s.LocalURL(1); got != want {
		t.Fatalf("LocalURL = %q, want %q", got, want)
	}
}

func TestCleanupRemovesOnlyStaleItems(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(1, "fresh.txt", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(2, "stale.txt", []byte("b")); err != nil {
		t.Fatal(err)
	}
	// Backdate item 2 beyond the retention window.
	old := time.Now().UTC().Add(-90 * 24 * time.Hour).Format(time.RFC3339Nano)
	if err := os.WriteFile(filepath.Join(s.itemDir(2), tsFile), []byte(old), 0o644); err != nil {
		t.Fatal(err)
	}

	removed := s.Cleanup(60 * 24 * time.Hour)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if !s.Has(1) {
		t.Fatal("fresh item was evicted")
	}
	if s.Has(2) {
		t.Fatal("stale item survived eviction")
	}
}

func TestCleanupEmptyRoot(t *testing.T) {
	s := newTestStore(t)
	if got := s.Cleanup(time.Hour); got != 0 {
		t.Fatalf("Cleanup on empty root = %d, want 0", got)
	}
}

func TestCleanupCorruptMarkerFallsBackToMtime(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(5, "doc.pdf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	d := s.itemDir(5)
	if err := os.WriteFile(filepath.Join(d, tsFile), []byte("not a timestamp"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-90 * 24 * time.Hour)
	if err := os.Chtimes(d, old, old); err != nil {
		t.Fatal(err)
	}

	if removed := s.Cleanup(60 * 24 * time.Hour); removed != 1 {
		t.Fatalf("removed = %d, want 1 (mtime fallback)", removed)
	}
}
