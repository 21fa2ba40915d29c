package llm

import (
	"context"
	"errors"
)

var (
	// ErrSummary marks a failed filing summary.
	ErrSummary = errors.New("summary failed")
	// ErrLookup marks a failed financial lookup.
	ErrLookup = errors.New("financial lookup failed")
)

// Generator sends one prompt to a language model and returns its text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// permanentError marks provider errors that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was classified as not retryable.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
