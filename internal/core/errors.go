package core

import (
	"errors"
	"fmt"
)

// ErrCategoryUnknown is returned when the nearest prototype does not belong
// to the configured category set.
var ErrCategoryUnknown = errors.New("nearest prototype is not a configured category")

// ProviderError reports a failure of the embedding or generation backend.
type ProviderError struct {
	Op  string // "embed", "embed_many", "generate"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// InputDataError reports an unusable input dataset.
type InputDataError struct {
	Path   string
	Reason string
}

func (e *InputDataError) Error() string {
	if e.Path == "" {
		return "invalid input data: " + e.Reason
	}
	return fmt.Sprintf("invalid input data in %s: %s", e.Path, e.Reason)
}

// IndexError reports a failure of the article index.
type IndexError struct {
	Op         string
	Collection string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s on %q failed: %v", e.Op, e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
