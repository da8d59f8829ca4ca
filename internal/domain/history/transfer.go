package history

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

// Document is the portable export format.
type Document struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

const documentVersion = 1

// Export writes all live entries as a YAML document.
func (s *Store) Export(w io.Writer) error {
	doc := Document{Version: documentVersion, Entries: s.Entries()}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return enc.Close()
}

// Import reads a YAML document. With merge the imported entries supersede
// existing ones only when they were used more recently; without merge the
// store is replaced. Import does not dump.
func (s *Store) Import(ctx context.Context, r io.Reader, merge bool) (int, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: %w", ErrStorage, ErrClosed)
	}
	if !merge {
		s.entries = make(map[string]Entry, len(doc.Entries))
	}
	n := 0
	for _, e := range doc.Entries {
		if e.Signature == "" || e.WorkItemID == "" {
			continue
		}
		if cur, ok := s.entries[e.Signature]; ok && merge && !e.LastUsed.After(cur.LastUsed) {
			continue
		}
		s.put(e)
		n++
	}
	metrics.UpdateHistorySize(len(s.entries))
	s.log.Info(ctx, "history imported", logger.Int("entries", n), logger.Bool("merge", merge))
	return n, nil
}
