// Package storage keeps locally cached copies of didactic attachment files.
//
// Layout on disk:
//
//	<root>/classeviva_didactics/<item_id>/<filename>
//	<root>/classeviva_didactics/<item_id>/.cv_ts   (UTC save instant)
//
// Everything under <root> is served by the HTTP server at the /local/ URL
// prefix, so a cached file is reachable at
// /local/classeviva_didactics/<item_id>/<filename>.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	// Subdir keeps the cache out of the way of anything else under root.
	Subdir = "classeviva_didactics"

	// marker file recording when an item was last saved
	tsFile = ".cv_ts"
)

type Store struct {
	dir string // <root>/classeviva_didactics
	log *zap.SugaredLogger
}

// New creates the cache rooted at dir (the static-serving root). The
// classeviva_didactics subdirectory is created eagerly.
func New(dir string, log *zap.SugaredLogger) (*Store, error) {
	s := &Store{dir: filepath.Join(dir, Subdir), log: log}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", s.dir, err)
	}
	return s, nil
}

func (s *Store) itemDir(itemID int64) string {
	return filepath.Join(s.dir, fmt.Sprint(itemID))
}

// Has reports whether the item is cached: its directory exists and holds at
// least one file besides the timestamp marker.
func (s *Store) Has(itemID int64) bool {
	entries, err := os.ReadDir(s.itemDir(itemID))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() != tsFile {
			return true
		}
	}
	return false
}

// Save writes data under the item's directory and stamps the save instant.
// Saving again under the same id overwrites the file and advances the stamp.
func (s *Store) Save(itemID int64, filename string, data []byte) (string, error) {
	d := s.itemDir(itemID)
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", fmt.Errorf("storage: create %s: %w", d, err)
	}
	target := filepath.Join(d, filepath.Base(filename))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", target, err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(filepath.Join(d, tsFile), []byte(stamp), 0o644); err != nil {
		return "", fmt.Errorf("storage: write timestamp for %d: %w", itemID, err)
	}
	return target, nil
}

// ContentPath returns the path of the cached file for the item, or "" when
// nothing is cached.
func (s *Store) ContentPath(itemID int64) string {
	entries, err := os.ReadDir(s.itemDir(itemID))
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Name() != tsFile {
			return filepath.Join(s.itemDir(itemID), e.Name())
		}
	}
	return ""
}

// LocalURL returns the /local/ URL of the cached file, or "" when nothing
// is cached.
func (s *Store) LocalURL(itemID int64) string {
	p := s.ContentPath(itemID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("/local/%s/%d/%s", Subdir, itemID, filepath.Base(p))
}

// Cleanup removes items last saved more than maxAge ago and returns the
// number of item directories removed. The save instant comes from the
// marker file; when the marker is missing or unparseable the directory's
// own mtime is used instead (documented heuristic fallback). Unreadable
// directories are skipped with a warning.
func (s *Store) Cleanup(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnw("storage: cannot read cache root", "dir", s.dir, "err", err)
		}
		return 0
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d := filepath.Join(s.dir, e.Name())
		savedAt, err := s.savedAt(d)
		if err != nil {
			s.log.Warnw("storage: cannot determine save time, skipping", "dir", d, "err", err)
			continue
		}
		if !savedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			s.log.Warnw("storage: cannot remove stale item", "dir", d, "err", err)
			continue
		}
		removed++
	}
	return removed
}

func (s *Store) savedAt(itemDir string) (time.Time, error) {
	raw, err := os.ReadFile(filepath.Join(itemDir, tsFile))
	if err == nil {
		if ts, perr := time.Parse(time.RFC3339Nano, string(raw)); perr == nil {
			return ts, nil
		}
		// fall through to mtime on a corrupt marker
	}
	fi, err := os.Stat(itemDir)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime().UTC(), nil
}
