package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reqflow/internal/audit"
	"reqflow/internal/store"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrAlreadyFinalized      = errors.New("request already finalized")
	ErrAlreadyCompleted      = errors.New("need already completed")
	ErrNotCompleted          = errors.New("need not completed")
	ErrCannotDeleteCompleted = errors.New("cannot delete completed need")
	ErrConflict              = errors.New("conflict")
	ErrDependency            = errors.New("dependency failure")
)

// Error kinds reported by Kind.
const (
	KindValidation            = "validation"
	KindNotFound              = "not_found"
	KindInvalidTransition     = "invalid_transition"
	KindAlreadyFinalized      = "already_finalized"
	KindAlreadyCompleted      = "already_completed"
	KindNotCompleted          = "not_completed"
	KindCannotDeleteCompleted = "cannot_delete_completed"
	KindConflict              = "conflict"
	KindDependency            = "dependency"
	KindInternal              = "internal"
)

var kinds = []struct {
	marker error
	kind   string
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyFinalized, KindAlreadyFinalized},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrAlreadyCompleted, KindAlreadyCompleted},
	{ErrNotCompleted, KindNotCompleted},
	{ErrCannotDeleteCompleted, KindCannotDeleteCompleted},
	{ErrConflict, KindConflict},
	{ErrDependency, KindDependency},
}

// Kind maps err to a stable classification for adapters. nil yields "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.kind
		}
	}
	return KindInternal
}

// wrap tags an error with marker and operation context so callers can
// classify it with errors.Is.
func wrap(marker error, operation, message string, err error) error {
	detail := strings.TrimSpace(operation)
	if message = strings.TrimSpace(message); message != "" {
		if detail != "" {
			detail += ": "
		}
		detail += message
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func validationf(operation, format string, args ...any) error {
	return wrap(ErrValidation, operation, fmt.Sprintf(format, args...), nil)
}

// classify translates store and lock failures into workflow markers. Errors
// that already carry a workflow marker pass through unchanged.
func classify(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != KindInternal {
		return err
	}
	switch {
	case errors.Is(err, audit.ErrInvalidEntry):
		return wrap(ErrValidation, operation, "", err)
	case errors.Is(err, store.ErrNotFound):
		return wrap(ErrNotFound, operation, "", err)
	case errors.Is(err, store.ErrConflict):
		return wrap(ErrConflict, operation, "", err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// The caller's context is alive, so the deadline was the lock wait.
		return wrap(ErrConflict, operation, "request is busy", err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
