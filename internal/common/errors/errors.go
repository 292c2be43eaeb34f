// Package errors provides standardized error handling for the prediction service.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Artifact loading (startup)
	ErrCodeArtifactMissing      ErrorCode = "ARTIFACT_MISSING"
	ErrCodeArtifactIncompatible ErrorCode = "ARTIFACT_INCOMPATIBLE"

	// Single-record inference
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodeSchemaEmpty    ErrorCode = "SCHEMA_EMPTY"

	// Batch scoring
	ErrCodeUnreadableFile   ErrorCode = "UNREADABLE_FILE"
	ErrCodeEmptyUpload      ErrorCode = "EMPTY_UPLOAD"
	ErrCodePayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeNoPipelineLoaded ErrorCode = "NO_PIPELINE_LOADED"
	ErrCodeInvalidMode      ErrorCode = "INVALID_MODE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Operation string                 `json:"operation"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s[%s]: %s: %s", e.Operation, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Operation, e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithOperation returns a copy of the error attributed to op.
func (e *StandardError) WithOperation(op string) *StandardError {
	cp := *e
	cp.Operation = op
	return &cp
}

// ==========================
// 2. Error Constructors
// ==========================

// NewArtifactMissingError reports an artifact file that does not exist.
func NewArtifactMissingError(kind, path string) *StandardError {
	return &StandardError{
		Code:      ErrCodeArtifactMissing,
		Operation: "load",
		Message:   "Model artifact not found",
		Details:   fmt.Sprintf("kind: %s, path: %s", kind, path),
		Timestamp: time.Now().UTC(),
	}
}

// NewArtifactIncompatibleError reports an artifact that could not be decoded.
func NewArtifactIncompatibleError(kind, path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeArtifactIncompatible,
		Operation: "load",
		Message:   "Model artifact could not be decoded",
		Details:   fmt.Sprintf("kind: %s, path: %s, error: %s", kind, path, err.Error()),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidPayloadError reports a single-record request that is not a flat mapping of scalars.
func NewInvalidPayloadError(operation, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPayload,
		Operation: operation,
		Message:   "Request payload must be a flat mapping of scalar values",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewSchemaEmptyError reports that no pipeline of the requested kind is loaded.
func NewSchemaEmptyError(operation, kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaEmpty,
		Operation: operation,
		Message:   "No pipeline loaded for the requested kind",
		Details:   fmt.Sprintf("kind: %s", kind),
		Timestamp: time.Now().UTC(),
	}
}

// NewNoPipelineLoadedError reports that the requested mode is unavailable.
func NewNoPipelineLoadedError(operation, kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoPipelineLoaded,
		Operation: operation,
		Message:   "No pipeline loaded for the requested mode",
		Details:   fmt.Sprintf("mode: %s", kind),
		Timestamp: time.Now().UTC(),
	}
}

// NewUnreadableFileError reports a malformed tabular upload.
func NewUnreadableFileError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnreadableFile,
		Operation: "batch",
		Message:   "Uploaded file is not a readable CSV table",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewEmptyUploadError reports an upload with zero bytes or no header row.
func NewEmptyUploadError() *StandardError {
	return &StandardError{
		Code:      ErrCodeEmptyUpload,
		Operation: "batch",
		Message:   "Uploaded file is empty",
		Details:   "a header row is required",
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadTooLargeError reports an upload over the configured limit.
func NewPayloadTooLargeError(limit int64) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadTooLarge,
		Operation: "batch",
		Message:   "Uploaded file exceeds the size limit",
		Details:   fmt.Sprintf("limit_bytes: %d", limit),
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidModeError reports an unknown kind/mode parameter.
func NewInvalidModeError(operation, mode string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidMode,
		Operation: operation,
		Message:   "Mode must be one of regression, classification",
		Details:   fmt.Sprintf("mode: %q", mode),
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unclassified failure. Details never carry the cause text.
func NewInternalError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Operation: operation,
		Message:   "Unexpected error",
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Error Conversion
// ==========================

// HTTPStatus returns the response status for an error code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidPayload,
		ErrCodeUnreadableFile,
		ErrCodeEmptyUpload,
		ErrCodeInvalidMode:
		return http.StatusBadRequest
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeSchemaEmpty,
		ErrCodeNoPipelineLoaded:
		return http.StatusConflict
	case ErrCodeArtifactMissing,
		ErrCodeArtifactIncompatible:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Normalize ensures we always have a StandardError.
func Normalize(operation string, err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		if stdErr.Operation == "" {
			return stdErr.WithOperation(operation)
		}
		return stdErr
	}
	return NewInternalError(operation, err)
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// BPMNError represents an error thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job error variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ConvertToBPMNError converts a StandardError for Camunda. Codes are passed through unchanged.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	details := stdErr.Details
	if stdErr.Code == ErrCodeInternal {
		details = ""
	}
	return &BPMNError{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		Details: details,
		ErrorVariables: map[string]interface{}{
			"operation": stdErr.Operation,
			"timestamp": stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "ARTIFACT"):
		return "ARTIFACT"
	case strings.Contains(codeStr, "PIPELINE") || strings.Contains(codeStr, "SCHEMA"):
		return "AVAILABILITY"
	case strings.Contains(codeStr, "FILE") || strings.Contains(codeStr, "UPLOAD"):
		return "UPLOAD"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "TOO_LARGE"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
