package llm

import (
	"errors"
	"fmt"
)

// Op names the provider operation that failed.
type Op string

const (
	OpComplete Op = "complete"
	OpEmbed    Op = "embed"
)

// ServiceError reports a failure talking to a hosted model backend.
// Op distinguishes embedding failures from completion failures so callers
// can tell which stage of the pipeline broke.
type ServiceError struct {
	Op       Op
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm %s (%s): %v", e.Op, e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsEmbeddingError reports whether err is a ServiceError from an Embed call.
func IsEmbeddingError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Op == OpEmbed
}

// IsCompletionError reports whether err is a ServiceError from a Complete call.
func IsCompletionError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Op == OpComplete
}
