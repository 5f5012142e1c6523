package query

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery       = errors.New("query is empty")
	ErrUnsupportedShape = errors.New("unsupported result shape")
)

// ExecutionError is returned when the remote query endpoint fails or returns
// a payload that cannot be read. Nothing is cached for a failed execution.
type ExecutionError struct {
	Query      string
	TenantID   int64
	StatusCode int
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("query execution failed for tenant %d (status %d): %v", e.TenantID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("query execution failed for tenant %d: %v", e.TenantID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

func newExecutionError(q string, tenantID int64, err error) *ExecutionError {
	e := &ExecutionError{Query: q, TenantID: tenantID, Err: err}
	var sc statusCoder
	if errors.As(err, &sc) {
		e.StatusCode = sc.HTTPStatus()
	}
	return e
}
