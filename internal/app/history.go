package service

import (
	"context"
	"fmt"
	"io"

	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/pkg/logger"
)

// History returns the live history entries, most used first.
func (s *Service) History() []history.Entry {
	if s.ready() != nil {
		return nil
	}
	return s.history.Entries()
}

// DeleteHistory forgets the entry for signature and flushes the change.
func (s *Service) DeleteHistory(ctx context.Context, signature string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if signature == "" {
		return false, fmt.Errorf("%w: empty signature", ErrInvalidInput)
	}
	ok, err := s.history.Delete(ctx, signature)
	if err != nil || !ok {
		return ok, err
	}
	if err := s.history.Dump(ctx); err != nil {
		return true, err
	}
	s.logger.Info(ctx, "history entry deleted", logger.String("signature", signature))
	return true, nil
}

// ExportHistory writes the history as YAML.
func (s *Service) ExportHistory(w io.Writer) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.history.Export(w)
}

// ImportHistory reads YAML entries, merging them into or replacing the
// current history, and flushes the result.
func (s *Service) ImportHistory(ctx context.Context, r io.Reader, merge bool) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	n, err := s.history.Import(ctx, r, merge)
	if err != nil {
		return 0, err
	}
	if err := s.history.Dump(ctx); err != nil {
		return n, err
	}
	return n, nil
}
