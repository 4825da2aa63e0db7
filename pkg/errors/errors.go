package errors

import (
	"fmt"
	"runtime"
	"time"
)

// AppError represents a standardized application error
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity levels for errors
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Error codes
const (
	// Configuration errors
	CodeConfigInvalid = "CONFIG_INVALID"

	// Dedup/overlap domain errors (see spec's error-taxonomy table)
	CodeParseRecordError        = "PARSE_RECORD_ERROR"
	CodeParseFormatUnrecognized = "PARSE_FORMAT_UNRECOGNIZED"
	CodeProjectLocked           = "PROJECT_LOCKED"
	CodeStrategyNotFound        = "STRATEGY_NOT_FOUND"
	CodeClusterNotFound         = "CLUSTER_NOT_FOUND"
	CodeSourceNotFound          = "SOURCE_NOT_FOUND"
	CodeJobNotFound             = "JOB_NOT_FOUND"
	CodeInvalidManualLinkInput  = "INVALID_MANUAL_LINK_INPUT"
	CodeInternalDbError         = "INTERNAL_DB_ERROR"
	CodeUnhandledError          = "UNHANDLED_ERROR"
)

// New creates a new standardized error
func New(code, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	return &AppError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium, // Default severity
	}
}

// NewCritical creates a critical error
func NewCritical(code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	return err
}

// NewWithSeverity creates an error with specific severity
func NewWithSeverity(severity Severity, code, component, operation, message string) *AppError {
	err := New(code, component, operation, message)
	err.Severity = severity
	return err
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Wrap wraps another error as the cause
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// ConfigError creates a configuration error
func ConfigError(operation, message string) *AppError {
	return New(CodeConfigInvalid, "config", operation, message)
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// NotFoundError creates a 404-mapped resource error for a missing
// strategy/cluster/source, per the gateway's error taxonomy.
func NotFoundError(code, operation, message string) *AppError {
	return NewWithSeverity(SeverityLow, code, "gateway", operation, message)
}

// ProjectLockedError creates the actionable, user-facing message a
// caller sees when a project already has a job running against it.
func ProjectLockedError(operation string) *AppError {
	return NewWithSeverity(SeverityLow, CodeProjectLocked, "lock", operation,
		"another job is running for this project, please wait and retry")
}

// InvalidManualLinkInputError creates the 400-mapped caller error for a
// manual-link request naming fewer than two record sources.
func InvalidManualLinkInputError(operation, message string) *AppError {
	return NewWithSeverity(SeverityLow, CodeInvalidManualLinkInput, "overlap", operation, message)
}

// InternalDbError wraps a raw store/driver failure behind the fixed
// user-safe message the spec requires; the raw cause is attached for
// logging only and must never be surfaced to a caller.
func InternalDbError(operation string, cause error) *AppError {
	return New(CodeInternalDbError, "gateway", operation,
		"Database error during import. Please retry or contact support.").Wrap(cause)
}

// UnhandledError is what the HTTP handlers return when a job row was
// created but the job queue rejected the work. It is not applied around
// the execution of background tasks.
func UnhandledError(operation string, cause error) *AppError {
	return NewCritical(CodeUnhandledError, "jobqueue", operation,
		"an unexpected error occurred; the job has been marked failed").Wrap(cause)
}

// HTTPStatus maps an error Code to the status code the operational
// surface's contract requires (202 is decided by the handler on
// success, not derived here).
func HTTPStatus(code string) int {
	switch code {
	case CodeProjectLocked:
		return 409
	case CodeStrategyNotFound, CodeClusterNotFound, CodeSourceNotFound, CodeJobNotFound:
		return 404
	case CodeInvalidManualLinkInput:
		return 400
	default:
		return 500
	}
}