package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource (unknown query key, data source, pipeline).
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals a malformed client request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMatch signals a malformed expression or term.
	ErrMatch = errors.New("match error")
	// ErrFieldNotFound signals a term field missing from the catalog.
	ErrFieldNotFound = errors.New("field not found")
	// ErrAttributeNotFound signals a record without a value for the term field.
	ErrAttributeNotFound = errors.New("attribute not found")
	// ErrUnsupportedCondition signals a condition the field type cannot evaluate.
	ErrUnsupportedCondition = errors.New("unsupported condition")

	// ErrShardCorrupt signals a shard excluded from the search.
	ErrShardCorrupt = errors.New("shard corrupt")
	// ErrNodeUnavailable signals a node that is not enabled or active.
	ErrNodeUnavailable = errors.New("Node is not enabled or active. Some search results may be missing.") //nolint:staticcheck,revive // user-facing message
	// ErrExtraction signals a failure reconstructing records for a stream.
	ErrExtraction = errors.New("extraction failed")
	// ErrStreamNotFound signals a deleted or purged stream.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrTaskTerminated signals a cooperative stop. Never reported as a search error.
	ErrTaskTerminated = errors.New("task terminated")
)

// MatchError wraps ErrMatch with a reason.
type MatchError struct {
	Reason string
}

func (e *MatchError) Error() string { return ErrMatch.Error() + ": " + e.Reason }

func (e *MatchError) Unwrap() error { return ErrMatch }

// NewMatchError creates a MatchError with a formatted reason.
func NewMatchError(format string, args ...any) error {
	return &MatchError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedConditionError reports a condition not valid for a field type.
// It is also a match failure.
type UnsupportedConditionError struct {
	Field     string
	FieldType string
	Condition string
}

func (e *UnsupportedConditionError) Error() string {
	return fmt.Sprintf("%s: %q for %s field %q", ErrUnsupportedCondition.Error(), e.Condition, e.FieldType, e.Field)
}

func (e *UnsupportedConditionError) Unwrap() []error {
	return []error{ErrUnsupportedCondition, ErrMatch}
}

// ExtractionError wraps a pipeline failure with the stream it happened on.
type ExtractionError struct {
	StreamID int64
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s for stream %d: %v", ErrExtraction.Error(), e.StreamID, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// FieldNotFound returns ErrFieldNotFound annotated with the field name.
func FieldNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrFieldNotFound, name)
}

// AttributeNotFound returns ErrAttributeNotFound annotated with the attribute name.
func AttributeNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrAttributeNotFound, name)
}
