package linking

import (
	"errors"
	"fmt"
)

// Messages shown when a manual selection refers to something unknown.
const (
	MsgEventNotFound    = "対象のイベントが見つかりません"
	MsgWorkItemNotFound = "選択されたWorkItemが見つかりません"
)

// Sentinel kinds. Typed errors below match them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("linking data invalid")
	ErrStorage    = errors.New("history storage failure")
)

// NotFoundError reports an event or work item id absent during manual
// resolution. It is returned inside a Selection, not as an error.
type NotFoundError struct {
	Kind    string // "event" or "workItem"
	ID      string
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError is the error form of a failed Validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "linking data invalid: " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError reports a failed history write or flush during manual
// linking. The link must not be treated as recorded.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("history %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
