package pipeline

import (
	"errors"
	"fmt"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

var (
	ErrNoActiveScope  = errors.New("no active dashboard scope")
	ErrScopeConflict  = errors.New("request scope differs from the active dashboard")
	ErrInvalidWidget  = errors.New("invalid widget definition")
	ErrWidgetNotFound = errors.New("widget not found")
)

// ListError means the widget list for a scope could not be fetched. The
// whole fetch fails with it.
type ListError struct {
	Scope models.Scope
	Err   error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("fetching widgets for %s: %v", e.Scope, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// WidgetFetchError is one widget's failed data resolution. It is logged and
// counted inside the fan-out and never fails the batch.
type WidgetFetchError struct {
	WidgetID models.WidgetID
	Err      error
}

func (e *WidgetFetchError) Error() string {
	return fmt.Sprintf("resolving data for widget %s: %v", e.WidgetID, e.Err)
}

func (e *WidgetFetchError) Unwrap() error { return e.Err }

// WidgetPersistError means the server did not confirm a widget creation.
type WidgetPersistError struct {
	Err error
}

func (e *WidgetPersistError) Error() string {
	return fmt.Sprintf("persisting widget: %v", e.Err)
}

func (e *WidgetPersistError) Unwrap() error { return e.Err }
