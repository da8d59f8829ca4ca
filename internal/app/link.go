package service

import (
	"context"

	"github.com/okian/ttlink/internal/domain/dedupe"
	"github.com/okian/ttlink/internal/domain/ignore"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

// LinkReport is the outcome of one AutoLink pass.
type LinkReport struct {
	Decisions []model.Decision
	// Linked holds the pairs ready for registration, duplicates removed.
	Linked     []model.Pair
	Unlinked   []model.Event
	Ignored    []ignore.Match
	Excluded   []model.Event // private or cancelled
	Duplicates []dedupe.Duplicate
	Counts     map[model.Source]int
}

// AutoLink runs one linking pass over events. Private and cancelled events
// are excluded, ignore patterns applied, the remainder resolved and the
// linked pairs run through the duplicate guard. On cancellation the partial
// report is returned with the context error.
func (s *Service) AutoLink(ctx context.Context, events []model.Event, workItems []model.WorkItem) (LinkReport, error) {
	if err := s.ready(); err != nil {
		return LinkReport{}, err
	}

	var hasEvents, hasSchedules bool
	for _, ev := range events {
		if ev.WorkingEventType != "" {
			hasSchedules = true
		} else {
			hasEvents = true
		}
	}
	if err := linking.ValidateLinkingData(hasEvents, hasSchedules, len(workItems) > 0).Err(); err != nil {
		return LinkReport{}, err
	}

	var report LinkReport
	enabled := ignore.Enabled(events)
	if len(enabled) != len(events) {
		keep := make(map[string]struct{}, len(enabled))
		for _, ev := range enabled {
			keep[ev.UUID] = struct{}{}
		}
		for _, ev := range events {
			if _, ok := keep[ev.UUID]; !ok {
				report.Excluded = append(report.Excluded, ev)
			}
		}
	}

	filtered := ignore.Filter(enabled, s.patterns)
	report.Ignored = filtered.Ignored
	metrics.RecordEventsIgnored(len(filtered.Ignored))

	cat := model.NewCatalogue(workItems)
	batch, err := s.resolver.ResolveAll(ctx, filtered.Kept, cat, linking.Options{
		AutoLink:            s.cfg.AutoLink,
		UseAI:               s.cfg.UseAI,
		ConfidenceThreshold: s.cfg.AIConfidenceThreshold,
	})

	guard := s.checkDuplicates(batch.Linked)

	for _, m := range filtered.Ignored {
		report.Decisions = append(report.Decisions, model.Ignored(m.Event, m.Pattern.Pattern))
	}
	report.Decisions = append(report.Decisions, batch.Decisions...)
	report.Linked = guard.Kept
	report.Duplicates = guard.Duplicates
	report.Unlinked = batch.Unlinked
	report.Counts = batch.Counts

	s.logger.Info(ctx, "auto link finished",
		logger.Int("events", len(events)),
		logger.Int("excluded", len(report.Excluded)),
		logger.Int("ignored", len(report.Ignored)),
		logger.Int("linked", len(report.Linked)),
		logger.Int("duplicates", len(report.Duplicates)),
		logger.Int("unlinked", len(report.Unlinked)))
	return report, err
}

// SelectWorkItem binds an unlinked event to a work item chosen by the user
// and records the choice in history. A not-found selection is returned
// without error; a storage failure is returned as the error.
func (s *Service) SelectWorkItem(ctx context.Context, eventID, workItemID string, unlinked []model.Event, workItems []model.WorkItem) (linking.Selection, error) {
	if err := s.ready(); err != nil {
		return linking.Selection{}, err
	}
	sel := linking.ProcessWorkItemSelect(eventID, workItemID, unlinked, workItems)
	if !sel.Success {
		return sel, nil
	}
	if err := linking.SaveManualLinkingToHistory(ctx, s.history, sel.Pair.Event, sel.Pair.WorkItem); err != nil {
		s.logger.Error(ctx, "manual link not saved",
			logger.String("event", eventID),
			logger.String("work_item_id", workItemID),
			logger.Error(err))
		return sel, err
	}
	return sel, nil
}

// CheckDuplicates runs the duplicate guard over pairs assembled after
// AutoLink, such as automatic links combined with manual selections.
func (s *Service) CheckDuplicates(pairs []model.Pair) (dedupe.Result, error) {
	if err := s.ready(); err != nil {
		return dedupe.Result{}, err
	}
	return s.checkDuplicates(pairs), nil
}

func (s *Service) checkDuplicates(pairs []model.Pair) dedupe.Result {
	res := dedupe.Check(pairs, dedupe.Policy{
		Enabled: s.cfg.DuplicateCheck,
		Window:  s.cfg.DuplicateWindow(),
	})
	metrics.RecordDuplicates(len(res.Duplicates))
	return res
}
