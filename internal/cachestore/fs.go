package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FS implements Store using one file per cache entry on the local
// filesystem: <dir>/<category>/<key>.json. This is the default backend and
// survives process restarts.
type FS struct {
	counters
	dir string
	log *slog.Logger
}

// NewFS creates a filesystem-backed store rooted at dir. The directory is
// created lazily on first Put.
func NewFS(dir string, log *slog.Logger) *FS {
	if log == nil {
		log = slog.Default()
	}
	return &FS{dir: dir, log: log}
}

func (s *FS) entryPath(category, key string) string {
	return filepath.Join(s.dir, category, key+".json")
}

// Get retrieves an entry. Any I/O error or structurally invalid content is a
// miss: corruption must trigger recomputation, never abort the caller.
func (s *FS) Get(ctx context.Context, category, key string) ([]byte, bool) {
	data, err := os.ReadFile(s.entryPath(category, key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug("cache read failed, treating as miss",
				"category", category, "key", key, "error", err)
		}
		s.miss()
		return nil, false
	}

	if !json.Valid(data) {
		s.log.Warn("corrupt cache entry, treating as miss",
			"category", category, "key", key)
		s.miss()
		return nil, false
	}

	s.hit()
	return data, true
}

// Put writes an entry atomically: the value goes to a temp file first and is
// renamed into place, so a crash mid-write can never leave a truncated entry
// that a later Get would trust.
func (s *FS) Put(ctx context.Context, category, key string, value []byte) error {
	dir := filepath.Join(s.dir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	final := s.entryPath(category, key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp) // Clean up temp file
		return fmt.Errorf("failed to rename cache entry: %w", err)
	}

	return nil
}

// Clear removes every entry in a category. Operator action only; the core
// pipeline never invalidates entries itself.
func (s *FS) Clear(category string) error {
	if err := os.RemoveAll(filepath.Join(s.dir, category)); err != nil {
		return fmt.Errorf("failed to clear category %q: %w", category, err)
	}
	return nil
}

// Close is a no-op for the filesystem store.
func (s *FS) Close() error {
	return nil
}
