// Package registration tracks each linked pair of a registration run
// through Pending, Processing and a terminal state.
package registration

import (
	"fmt"
	"sync"
	"time"

	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/metrics"
)

// Item is the tracked state of one pair.
type Item struct {
	Key       string
	Pair      model.Pair
	State     State
	Detail    string // error or skip reason
	UpdatedAt time.Time
}

// Progress is the per-state count of a run.
type Progress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Error      int `json:"error"`
	Skipped    int `json:"skipped"`
}

// Done is the number of pairs in a terminal state.
func (p Progress) Done() int {
	return p.Success + p.Error + p.Skipped
}

// Tracker owns the outcome of every pair in one run. A finished tracker is
// never reset; start a new one for the next run.
type Tracker struct {
	mu    sync.Mutex
	items map[string]*Item
	order []string
	now   func() time.Time
}

// NewTracker registers pairs as Pending.
func NewTracker(pairs []model.Pair) (*Tracker, error) {
	t := &Tracker{items: make(map[string]*Item, len(pairs)), now: time.Now}
	for _, p := range pairs {
		key := p.Key()
		if _, dup := t.items[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePair, key)
		}
		t.items[key] = &Item{Key: key, Pair: p, State: Pending, UpdatedAt: t.now()}
		t.order = append(t.order, key)
	}
	return t, nil
}

// Start moves key from Pending to Processing.
func (t *Tracker) Start(key string) error {
	return t.transition(key, Processing, "")
}

// Succeed moves key from Processing to Success.
func (t *Tracker) Succeed(key string) error {
	return t.transition(key, Success, "")
}

// Fail moves key from Processing to Error with detail.
func (t *Tracker) Fail(key, detail string) error {
	return t.transition(key, Error, detail)
}

// Skip moves key from Pending to Skipped.
func (t *Tracker) Skip(key, reason string) error {
	return t.transition(key, Skipped, reason)
}

// SkipPending moves every Pending pair to Skipped and returns how many moved.
func (t *Tracker) SkipPending(reason string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, key := range t.order {
		it := t.items[key]
		if it.State == Pending {
			t.set(it, Skipped, reason)
			n++
		}
	}
	return n
}

func (t *Tracker) transition(key string, to State, detail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, key)
	}
	if !canTransition(it.State, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, key, it.State, to)
	}
	t.set(it, to, detail)
	return nil
}

func (t *Tracker) set(it *Item, to State, detail string) {
	it.State = to
	it.Detail = detail
	it.UpdatedAt = t.now()
	metrics.RecordRegistrationTransition(to.String())
}

// Get returns a copy of the item for key.
func (t *Tracker) Get(key string) (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[key]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Items returns copies of all items in registration order.
func (t *Tracker) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Item, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, *t.items[key])
	}
	return out
}

// Progress counts pairs per state.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := Progress{Total: len(t.order)}
	for _, it := range t.items {
		switch it.State {
		case Pending:
			p.Pending++
		case Processing:
			p.Processing++
		case Success:
			p.Success++
		case Error:
			p.Error++
		case Skipped:
			p.Skipped++
		}
	}
	return p
}

// Label names the pair as "event → work item".
func (it Item) Label() string {
	label := it.Pair.Event.Name
	if wl := it.Pair.WorkItem.Label(); wl != "" {
		label += " → " + wl
	}
	return label
}

// Complete reports whether no pair is Pending or Processing.
func (t *Tracker) Complete() bool {
	p := t.Progress()
	return p.Pending == 0 && p.Processing == 0
}

// Failures lists every Error pair as an id/label/message triple.
func (t *Tracker) Failures() []ItemError {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ItemError
	for _, key := range t.order {
		it := t.items[key]
		if it.State != Error {
			continue
		}
		out = append(out, ItemError{ID: key, Label: it.Label(), Message: it.Detail})
	}
	return out
}
