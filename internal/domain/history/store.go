// Package history keeps the signature to work item mapping that lets the
// resolver relink recurring events automatically.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

// Entry is one learned link.
type Entry struct {
	Signature    string    `yaml:"signature" json:"signature"`
	WorkItemID   string    `yaml:"work_item_id" json:"workItemId"`
	EventName    string    `yaml:"event_name" json:"eventName"`
	WorkItemName string    `yaml:"work_item_name" json:"workItemName"`
	UseCount     int       `yaml:"use_count" json:"useCount"`
	LastUsed     time.Time `yaml:"last_used" json:"lastUsed"`
}

// Backend is durable storage for history snapshots. Save must replace the
// stored snapshot atomically: on error the previous snapshot stays intact.
type Backend interface {
	Save(ctx context.Context, entries []Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// Store is the single owner of linking history. Reads and writes are safe
// for concurrent use; Dump calls are serialized and each one persists every
// SetHistory that returned before it was called.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool

	dumpMu  sync.Mutex
	backend Backend

	maxSize       int
	retention     time.Duration
	withOrganizer bool
	now           func() time.Time
	log           logger.Logger
}

// NewStore creates an empty store over backend. Call Load to read the
// persisted snapshot.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		backend: backend,
		maxSize: 300,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("history")
	}
	return s
}

// Signature derives the key for ev using the store's signature settings.
func (s *Store) Signature(ev model.Event) string {
	return Signature(ev, s.withOrganizer)
}

// Load replaces in-memory state with the backend snapshot.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load: %w", ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", ErrStorage, ErrClosed)
	}
	s.entries = make(map[string]Entry, len(loaded))
	for _, e := range loaded {
		if e.Signature == "" {
			continue
		}
		s.put(e)
	}
	metrics.UpdateHistorySize(len(s.entries))
	s.log.Info(ctx, "history loaded", logger.Int("entries", len(s.entries)))
	return nil
}

// Lookup returns the work item id recorded for signature. Expired entries
// are misses. Lookup has no side effects.
func (s *Store) Lookup(_ context.Context, signature string) (string, bool) {
	e, ok := s.Get(signature)
	if !ok {
		return "", false
	}
	return e.WorkItemID, true
}

// Get returns the live entry for signature.
func (s *Store) Get(signature string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[signature]
	if !ok || s.expired(e, s.now()) {
		return Entry{}, false
	}
	return e, true
}

// SetHistory records that ev links to wi, superseding any previous entry
// for the same signature.
func (s *Store) SetHistory(ctx context.Context, ev model.Event, wi model.WorkItem) error {
	sig := s.Signature(ev)
	if sig == "" {
		return fmt.Errorf("%w: event %q", ErrEmptySignature, ev.UUID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", ErrStorage, ErrClosed)
	}

	now := s.now()
	e := s.entries[sig]
	if e.WorkItemID != wi.ID || s.expired(e, now) {
		e.UseCount = 0
	}
	e.Signature = sig
	e.WorkItemID = wi.ID
	e.EventName = ev.Name
	e.WorkItemName = wi.Name
	e.UseCount++
	e.LastUsed = now
	s.put(e)

	metrics.UpdateHistorySize(len(s.entries))
	s.log.Debug(ctx, "history set",
		logger.String("signature", sig),
		logger.String("work_item_id", wi.ID),
		logger.Int("use_count", e.UseCount))
	return nil
}

// put inserts e and evicts least recently used entries beyond maxSize.
// Caller holds s.mu.
func (s *Store) put(e Entry) {
	s.entries[e.Signature] = e
	if s.maxSize <= 0 {
		return
	}
	evicted := 0
	for len(s.entries) > s.maxSize {
		var oldest string
		var oldestAt time.Time
		for sig, cur := range s.entries {
			if sig == e.Signature {
				continue
			}
			if oldest == "" || cur.LastUsed.Before(oldestAt) ||
				(cur.LastUsed.Equal(oldestAt) && sig < oldest) {
				oldest, oldestAt = sig, cur.LastUsed
			}
		}
		if oldest == "" {
			break
		}
		delete(s.entries, oldest)
		evicted++
	}
	metrics.RecordHistoryEvictions("capacity", evicted)
}

func (s *Store) expired(e Entry, now time.Time) bool {
	return s.retention > 0 && now.Sub(e.LastUsed) > s.retention
}

// Dump persists a snapshot of all entries. Expired entries are pruned
// first. On failure the backend keeps its previous snapshot and the error
// wraps ErrStorage.
func (s *Store) Dump(ctx context.Context) error {
	s.dumpMu.Lock()
	defer s.dumpMu.Unlock()

	start := time.Now()
	s.Prune(ctx)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %w", ErrStorage, ErrClosed)
	}
	snapshot := s.sortedLocked()
	s.mu.RUnlock()

	err := s.backend.Save(ctx, snapshot)
	latency := float64(time.Since(start).Milliseconds())
	metrics.RecordHistoryDump(err == nil, latency)
	if err != nil {
		metrics.RecordErrorByComponent("history", "dump")
		s.log.Error(ctx, "history dump failed", logger.Error(err), logger.Int("entries", len(snapshot)))
		return fmt.Errorf("%w: dump: %w", ErrStorage, err)
	}
	s.log.Debug(ctx, "history dumped", logger.Int("entries", len(snapshot)))
	return nil
}

// Prune removes expired entries and returns how many were dropped.
func (s *Store) Prune(ctx context.Context) int {
	if s.retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for sig, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, sig)
			n++
		}
	}
	if n > 0 {
		metrics.RecordHistoryEvictions("expired", n)
		metrics.UpdateHistorySize(len(s.entries))
		s.log.Info(ctx, "history pruned", logger.Int("expired", n))
	}
	return n
}

// Delete removes the entry for signature.
func (s *Store) Delete(_ context.Context, signature string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("%w: %w", ErrStorage, ErrClosed)
	}
	if _, ok := s.entries[signature]; !ok {
		return false, nil
	}
	delete(s.entries, signature)
	metrics.UpdateHistorySize(len(s.entries))
	return true, nil
}

// Entries returns live entries ordered by use count, then most recent use.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.sortedLocked() {
		if !s.expired(e, now) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) sortedLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UseCount != out[j].UseCount {
			return out[i].UseCount > out[j].UseCount
		}
		if !out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].LastUsed.After(out[j].LastUsed)
		}
		return out[i].Signature < out[j].Signature
	})
	return out
}

// Size returns the number of stored entries, expired ones included until
// they are pruned.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close rejects further writes. A final Dump should precede it.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
