// Package errors provides structured error types for the spend engine.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by engine component.
type ErrorCategory string

const (
	ErrCategoryManifest ErrorCategory = "MANIFEST"
	ErrCategoryChunk    ErrorCategory = "CHUNK"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryExport   ErrorCategory = "EXPORT"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Manifest codes
	CodeIndexUnavailable = "INDEX_UNAVAILABLE"
	CodeDatasetUnusable  = "DATASET_UNUSABLE"
	CodeBadManifest      = "BAD_MANIFEST"

	// Chunk codes
	CodeFetchFailed    = "FETCH_FAILED"
	CodeDecodeFailed   = "DECODE_FAILED"
	CodeUnknownChunk   = "UNKNOWN_CHUNK"
	CodeIllegalTransit = "ILLEGAL_TRANSITION"

	// Query codes
	CodeBadQuery      = "BAD_QUERY"
	CodeBadSortField  = "BAD_SORT_FIELD"
	CodeBadPagination = "BAD_PAGINATION"

	// Export codes
	CodeExportFailed = "EXPORT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// EngineError is the structured error type used throughout the engine.
type EngineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EngineError.
func New(category ErrorCategory, code, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new EngineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *EngineError {
	return &EngineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *EngineError) WithDetails(details map[string]interface{}) *EngineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCategory(err error) ErrorCategory {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. A failed chunk
// fetch reverts the chunk to unloaded, so the host may simply ask again;
// a broken manifest or query cannot be retried into success.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryChunk && code == CodeFetchFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewManifestError(code, message string, cause error) *EngineError {
	return Wrap(ErrCategoryManifest, code, message, cause)
}

func NewChunkError(code, message string, cause error) *EngineError {
	return Wrap(ErrCategoryChunk, code, message, cause)
}

func NewQueryError(code, message string) *EngineError {
	return New(ErrCategoryQuery, code, message)
}

func NewExportError(message string, cause error) *EngineError {
	return Wrap(ErrCategoryExport, CodeExportFailed, message, cause)
}

func NewInternalError(message string, cause error) *EngineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
