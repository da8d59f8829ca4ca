// Package ai proposes work items for events with an Anthropic model.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	defaultMaxTokens     = 1024
	defaultMaxConcurrent = 2
	historyHints         = 20
)

var objectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// Messages is the part of the Anthropic client the suggester calls.
type Messages interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// HistorySource lists learned links used as hints.
type HistorySource interface {
	Entries() []history.Entry
}

// HistoryFunc adapts a function to HistorySource.
type HistoryFunc func() []history.Entry

// Entries calls f.
func (f HistoryFunc) Entries() []history.Entry { return f() }

// Suggester implements linking.Suggester.
type Suggester struct {
	messages      Messages
	model         string
	maxConcurrent int64
	sem           *semaphore.Weighted
	history       HistorySource
	log           logger.Logger
}

var (
	_ linking.Suggester = (*Suggester)(nil)
	_ HistorySource     = (*history.Store)(nil)
)

// New creates a Suggester. apiKey may be empty only when WithMessages is given.
func New(apiKey string, opts ...Option) (*Suggester, error) {
	s := &Suggester{
		model:         DefaultModel,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.messages == nil {
		if apiKey == "" {
			return nil, ErrNoAPIKey
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		s.messages = &client.Messages
	}
	if s.log == nil {
		s.log = logger.Get().Named("ai")
	}
	s.sem = semaphore.NewWeighted(s.maxConcurrent)
	return s, nil
}

// Suggest asks the model to place ev among candidates.
func (s *Suggester) Suggest(ctx context.Context, ev model.Event, candidates []model.WorkItem) ([]linking.Suggestion, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	resp, err := s.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: defaultMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: s.systemPrompt(candidates)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(ev))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out, err := ParseSuggestions(text.String())
	if err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "ai suggestions",
		logger.String("event", ev.UUID),
		logger.Int("count", len(out)),
		logger.Duration("took", time.Since(start)))
	return out, nil
}

func (s *Suggester) systemPrompt(candidates []model.WorkItem) string {
	var b strings.Builder
	b.WriteString("You assign calendar events to work items of a time tracking system.\n\n")
	b.WriteString("Available work items:\n")
	for _, wi := range candidates {
		fmt.Fprintf(&b, "- ID:%s, name:%q, path:%q\n", wi.ID, wi.Name, wi.FolderPath)
	}

	if s.history != nil {
		entries := s.history.Entries()
		if len(entries) > historyHints {
			entries = entries[:historyHints]
		}
		if len(entries) > 0 {
			b.WriteString("\nPast links, most used first:\n")
			for _, e := range entries {
				fmt.Fprintf(&b, "- event:%q -> work item ID=%s, name:%q (used %d times)\n",
					e.EventName, e.WorkItemID, e.WorkItemName, e.UseCount)
			}
		}
	}

	b.WriteString(`
Rules:
1. Prefer work items whose name is similar to the event name.
2. Stay consistent with past links.
3. Meetings go to meeting work items; maintenance and incidents to their operational items.
4. When unsure, pick the most generic work item and lower the confidence.

Answer with JSON only, in this shape:
{"suggestions":[{"eventUuid":"...","workItemId":"...","confidence":0.0,"reason":"..."}]}
`)
	return b.String()
}

func userPrompt(ev model.Event) string {
	name := ev.Name
	if name == "" {
		name = "(untitled)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Link this event:\nUUID:%s, title:%q", ev.UUID, name)
	if ev.Organizer != "" {
		fmt.Fprintf(&b, ", organizer:%s", ev.Organizer)
	}
	if ev.Location != "" {
		fmt.Fprintf(&b, ", location:%s", ev.Location)
	}
	return b.String()
}

type suggestionDTO struct {
	EventUUID  string   `json:"eventUuid"`
	WorkItemID string   `json:"workItemId"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// ParseSuggestions extracts the suggestions object from a model answer,
// tolerating surrounding prose or code fences. Entries missing a field are
// dropped; an answer without any valid entry is an ErrParse.
func ParseSuggestions(content string) ([]linking.Suggestion, error) {
	raw := objectRegex.FindString(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: response is not JSON", ErrParse)
	}
	var doc struct {
		Suggestions []suggestionDTO `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if doc.Suggestions == nil {
		return nil, fmt.Errorf("%w: suggestions missing", ErrParse)
	}

	out := make([]linking.Suggestion, 0, len(doc.Suggestions))
	for _, d := range doc.Suggestions {
		if d.EventUUID == "" || d.WorkItemID == "" || d.Confidence == nil || d.Reason == "" {
			continue
		}
		out = append(out, linking.Suggestion{
			EventUUID:  d.EventUUID,
			WorkItemID: d.WorkItemID,
			Confidence: *d.Confidence,
			Reason:     d.Reason,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid suggestion", ErrParse)
	}
	return out, nil
}
