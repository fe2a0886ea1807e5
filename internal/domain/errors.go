package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel DomainErrors by code and message so wrapped copies still compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeExtraction    = "EXTRACTION_ERROR"
	ErrCodeChunking      = "CHUNKING_ERROR"
	ErrCodeEmbedding     = "EMBEDDING_ERROR"
	ErrCodeStore         = "STORE_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrNoContent            = NewDomainError(ErrCodeValidation, "no content produced")
	ErrUnsupportedFormat    = NewDomainError(ErrCodeValidation, "unsupported file format")
)

// Not found errors
var (
	ErrDocumentNotFound   = NewDomainError(ErrCodeNotFound, "knowledge document not found")
	ErrUploadItemNotFound = NewDomainError(ErrCodeNotFound, "upload item not found")
	ErrRecordNotFound     = NewDomainError(ErrCodeNotFound, "record embedding not found")
	ErrFileNotRetained    = NewDomainError(ErrCodeNotFound, "original file was not retained")
)

// Embedding errors
var (
	ErrEmptyEmbedding    = NewDomainError(ErrCodeEmbedding, "embedding model returned no vector")
	ErrDimensionMismatch = NewDomainError(ErrCodeEmbedding, "embedding dimension mismatch")
)

// Queue errors
var (
	ErrUploadNotPending = NewDomainError(ErrCodeValidation, "upload item is no longer pending")
	ErrQueueFull        = NewDomainError(ErrCodeInternalError, "upload queue is full")
	ErrQueueStopped     = NewDomainError(ErrCodeInternalError, "upload queue is stopped")
)

// NewExtractionError reports a file whose content could not be turned into text.
func NewExtractionError(fileName string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeExtraction, fmt.Sprintf("failed to extract text from %s", fileName), err)
}

// NewChunkingError reports degenerate chunker input.
func NewChunkingError(message string) *DomainError {
	return NewDomainError(ErrCodeChunking, message)
}

// NewEmbeddingError wraps a failed embedding call.
func NewEmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "failed to generate embedding", err)
}

// NewDimensionMismatchError reports an embedding whose length differs from the configured dimension.
func NewDimensionMismatchError(expected, got int) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding dimension mismatch",
		fmt.Errorf("expected %d, got %d", expected, got))
}

// NewStoreError wraps a failed insert or delete.
func NewStoreError(operation string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStore, "failed to "+operation, err)
}

// ErrorCode extracts the DomainError code from err, or "" when err carries none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
