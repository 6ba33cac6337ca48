// pkg/pipeline/error.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/rates"
)

// Sentinel errors for the pipeline failure taxonomy. Input format
// errors are fatal for one file, schema issues and lookup misses are
// advisory, collaborator unavailability is surfaced distinctly after
// retries are exhausted.
var (
	ErrInputFormat             = errors.New("unreadable or unsupported input file")
	ErrCollaboratorUnavailable = errors.New("reference data unavailable")
	ErrMissingColumns          = errors.New("required columns missing")
)

// Category classifies a pipeline failure for reporting
type Category int

const (
	CategoryNone Category = iota
	// CategoryInputFormat: the file itself could not be read; fatal
	// for that file only
	CategoryInputFormat
	// CategorySchema: missing headers or invalid types; advisory
	CategorySchema
	// CategoryLookup: a row-level rule/rate miss; degraded handling
	CategoryLookup
	// CategoryCollaborator: a store or feed is down after retries
	CategoryCollaborator
	// CategoryInternal: anything else
	CategoryInternal
)

// String returns a string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "None"
	case CategoryInputFormat:
		return "InputFormat"
	case CategorySchema:
		return "Schema"
	case CategoryLookup:
		return "Lookup"
	case CategoryCollaborator:
		return "Collaborator"
	case CategoryInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// Classify maps an error to its pipeline category
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, frame.ErrUnsupportedFormat), errors.Is(err, ErrInputFormat):
		return CategoryInputFormat
	case errors.Is(err, ErrMissingColumns):
		return CategorySchema
	case errors.Is(err, rates.ErrNoRate):
		return CategoryLookup
	case errors.Is(err, ErrCollaboratorUnavailable):
		return CategoryCollaborator
	default:
		return CategoryInternal
	}
}

// UserMessage renders a failure as a human-readable reason string.
// Internal detail never reaches the end caller.
func UserMessage(err error) string {
	switch Classify(err) {
	case CategoryInputFormat:
		return "The uploaded file could not be read. Please upload a CSV, TSV or XLSX file with a header row."
	case CategorySchema:
		return "The uploaded file is missing required columns. See the validation details."
	case CategoryCollaborator:
		return "Reference data is temporarily unavailable. Please try again shortly."
	default:
		return "Processing failed due to an internal error."
	}
}

// retry policy for collaborator calls
const (
	maxAttempts  = 3
	initialDelay = 200 * time.Millisecond
)

// withRetry runs a collaborator call with exponential backoff. Context
// cancellation stops the retry loop immediately.
func withRetry[T any](ctx context.Context, logger *zap.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := initialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		logger.Warn("Collaborator call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		delay *= 2
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, maxAttempts, lastErr)
}
