package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

// Sentinels for errors.Is. Every error returned by Service matches exactly
// one of them.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotModifiable       = errors.New("not modifiable")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrDataInconsistency   = errors.New("DB data inconsistency")
	ErrStoreFailure        = errors.New("store failure")
)

type NotFoundError struct {
	Kind model.Kind
	ID   int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type NotModifiableError struct {
	Kind   model.Kind
	ID     int64
	Status model.ReportStatus
}

func (e *NotModifiableError) Error() string {
	return fmt.Sprintf("%s %d cannot be modified in status %s", e.Kind, e.ID, e.Status)
}

func (e *NotModifiableError) Is(target error) bool { return target == ErrNotModifiable }

type ConstraintViolationError struct {
	Field   string
	Message string
}

func (e *ConstraintViolationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "constraint violation on " + e.Field
}

func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

// StoreFailureError carries a message safe to show callers. The driver error
// is kept for logs only.
type StoreFailureError struct {
	Message string
	cause   error
}

func (e *StoreFailureError) Error() string { return e.Message }

func (e *StoreFailureError) Is(target error) bool { return target == ErrStoreFailure }

func (e *StoreFailureError) Unwrap() error { return e.cause }

// translate maps a store or validation error onto the taxonomy. Errors that
// already belong to it pass through.
func translate(err error, kind model.Kind, id int64) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotModifiable),
		errors.Is(err, ErrConstraintViolation),
		errors.Is(err, ErrDataInconsistency),
		errors.Is(err, ErrStoreFailure):
		return err
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Kind: kind, ID: id}
	}

	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		return &ConstraintViolationError{Field: ce.Field}
	}

	var fe *model.FieldError
	if errors.As(err, &fe) {
		return &ConstraintViolationError{Field: fe.Field, Message: fe.Error()}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &StoreFailureError{Message: "request cancelled", cause: err}
	}
	return &StoreFailureError{Message: "storage operation failed", cause: err}
}
