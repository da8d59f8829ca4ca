// Package repository provides durable backends for linking history.
package repository

import (
	"github.com/okian/ttlink/internal/domain/history"
)

var (
	_ history.Backend = (*SQLiteHistory)(nil)
	_ history.Backend = (*FileHistory)(nil)
	_ history.Backend = (*MemoryHistory)(nil)
)

// Open returns the backend named by kind: sqlite, file or memory.
func Open(kind, path string, opts ...Option) (history.Backend, error) {
	switch kind {
	case "sqlite":
		h, err := OpenSQLite(path, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	case "file":
		h, err := NewFileHistory(path, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	case "memory":
		return NewMemoryHistory(), nil
	default:
		return nil, ErrUnknownBackend
	}
}
