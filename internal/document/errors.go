package document

import (
	"errors"
	"fmt"
)

// Traversal guard sentinels, matched with errors.Is.
var (
	ErrTooDeep  = errors.New("document too deep")
	ErrTooLarge = errors.New("collection too large")

	// ErrTooManyIterations is a kind of ErrTooLarge: the collections are
	// each within bounds but a rule walks too many of their elements.
	ErrTooManyIterations = fmt.Errorf("iteration budget exceeded: %w", ErrTooLarge)
)

// LimitError reports a tripped traversal guard and where it tripped.
type LimitError struct {
	Kind  error // ErrTooDeep, ErrTooLarge or ErrTooManyIterations
	Path  string
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v at %s (limit %d)", e.Kind, e.Path, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return e.Kind
}

// LoadError wraps any failure to read or parse a document.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load document %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
