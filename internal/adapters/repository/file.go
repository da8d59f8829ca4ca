package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/pkg/logger"
)

// FileHistory keeps the snapshot in a YAML file. Saves write a temp file in
// the same directory and rename it over the target.
type FileHistory struct {
	path string
	mu   sync.Mutex
	log  logger.Logger
}

// NewFileHistory returns a backend for path. The file is created on first Save.
func NewFileHistory(path string, opts ...Option) (*FileHistory, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	st := newSettings("file", opts)
	return &FileHistory{path: path, log: st.log}, nil
}

// Save atomically replaces the file contents with entries.
func (f *FileHistory) Save(ctx context.Context, entries []history.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(history.Document{Version: 1, Entries: entries})
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".ttlink-history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	f.log.Debug(ctx, "snapshot saved", logger.String("path", f.path), logger.Int("entries", len(entries)))
	return nil
}

// Load reads the file. A missing file is an empty history.
func (f *FileHistory) Load(_ context.Context) ([]history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	var doc history.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return doc.Entries, nil
}
