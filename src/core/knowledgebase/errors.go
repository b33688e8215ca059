package knowledgebase

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported by the services. Callers match them with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUpstream     = errors.New("upstream failure")
	ErrNoResults    = errors.New("no results")
	ErrTimeout      = errors.New("timed out")
)

// classify attaches an error kind to a failure coming from a collaborator.
// Errors that already carry a kind keep it.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoResults),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUpstream):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
	}
}
