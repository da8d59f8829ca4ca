package linking

import (
	"context"

	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/metrics"
)

// HistoryWriter is the write side of the history store.
type HistoryWriter interface {
	SetHistory(ctx context.Context, ev model.Event, wi model.WorkItem) error
	Dump(ctx context.Context) error
}

// Selection is the tagged result of a manual work item choice.
type Selection struct {
	Success bool
	Pair    model.Pair
	Err     *NotFoundError
}

// Message is the user facing failure text, empty on success.
func (s Selection) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

// ProcessWorkItemSelect binds the unlinked event eventID to workItemID. The
// event is checked first, so an unknown event reports event-not-found
// whatever the work item.
func ProcessWorkItemSelect(eventID, workItemID string, unlinked []model.Event, workItems []model.WorkItem) Selection {
	ev, ok := model.FindEvent(unlinked, eventID)
	if !ok {
		metrics.RecordManualLink("not_found")
		return Selection{Err: &NotFoundError{Kind: "event", ID: eventID, Message: MsgEventNotFound}}
	}
	wi, ok := model.NewCatalogue(workItems).Get(workItemID)
	if !ok {
		metrics.RecordManualLink("not_found")
		return Selection{Err: &NotFoundError{Kind: "workItem", ID: workItemID, Message: MsgWorkItemNotFound}}
	}
	return Selection{
		Success: true,
		Pair:    model.Pair{Event: ev, WorkItem: wi, Source: model.SourceManual},
	}
}

// SaveManualLinkingToHistory records the choice and flushes it. Either
// failure aborts and is returned as a *StorageError.
func SaveManualLinkingToHistory(ctx context.Context, store HistoryWriter, ev model.Event, wi model.WorkItem) error {
	if err := store.SetHistory(ctx, ev, wi); err != nil {
		metrics.RecordManualLink("storage_error")
		return &StorageError{Op: "set", Err: err}
	}
	if err := store.Dump(ctx); err != nil {
		metrics.RecordManualLink("storage_error")
		return &StorageError{Op: "dump", Err: err}
	}
	metrics.RecordManualLink("ok")
	return nil
}
