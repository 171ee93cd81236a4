// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy used across agentnet.
// Every public operation returns either a result or an *Error carrying a Code
// that callers can switch on without parsing strings.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode classifies agentnet errors for callers, monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeValidation indicates the input was invalid. No side effect happened.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodeUnauthorized indicates the caller lacks the required scope.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeNotFound indicates a referenced network, task, agent or memory is absent.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeRateLimit indicates the caller's token budget is exhausted.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeCircuitOpen indicates a dependency is protectively unavailable.
	CodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// CodeGeneration indicates the generation capability failed after retries and fallbacks.
	CodeGeneration ErrorCode = "GENERATION_ERROR"

	// CodeNoCoordinator indicates a network has no coordinator agent.
	CodeNoCoordinator ErrorCode = "NO_COORDINATOR"

	// CodeDependencyFailed indicates an upstream job in a dependency graph failed.
	CodeDependencyFailed ErrorCode = "DEPENDENCY_FAILED"

	// CodeDependencyNotFound indicates a job depends on an unknown job.
	CodeDependencyNotFound ErrorCode = "DEPENDENCY_NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeContextLost indicates the context was canceled mid-operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"

	// CodeMemoryError indicates a tiered memory store failure.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeStoreError indicates a record store failure.
	CodeStoreError ErrorCode = "STORE_ERROR"
)

// Error is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler so task records and tool results can
// embed errors as well-formed payloads.
func (e *Error) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
	})
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
func (e *Error) WithAttribute(key, value string) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be retried.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// Validation builds a VALIDATION_ERROR.
func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...), nil)
}

// Unauthorized builds an UNAUTHORIZED error for the missing scope.
func Unauthorized(scope string) *Error {
	return New(CodeUnauthorized, "caller lacks required scope", nil).
		WithContext("scope", scope)
}

// NotFound builds a NOT_FOUND error for a kind of entity.
func NotFound(kind, id string) *Error {
	return New(CodeNotFound, kind+" not found", nil).
		WithContext("kind", kind).
		WithContext("id", id)
}

// RateLimited builds a RATE_LIMITED error carrying the wait hint.
func RateLimited(key string, wait time.Duration) *Error {
	return New(CodeRateLimit, "rate limit exceeded", nil).
		WithContext("key", key).
		WithContext("wait", wait).
		WithRecoverable(true)
}

// CircuitOpen builds a CIRCUIT_OPEN error for the named breaker.
func CircuitOpen(name string) *Error {
	return New(CodeCircuitOpen, "circuit breaker open", nil).
		WithContext("breaker", name).
		WithRecoverable(false)
}

// As converts err to *Error. Errors of other types are wrapped as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err (or any error it wraps) is an *Error with code.
func HasCode(err error, code ErrorCode) bool {
	var ae *Error
	if !stderrors.As(err, &ae) {
		return false
	}
	return ae.Code == code
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// WaitHint extracts the wait duration carried by a RATE_LIMITED error.
func WaitHint(err error) (time.Duration, bool) {
	var ae *Error
	if !stderrors.As(err, &ae) || ae.Code != CodeRateLimit {
		return 0, false
	}
	wait, ok := ae.Context["wait"].(time.Duration)
	return wait, ok
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeDependencyNotFound:
		return 404
	case CodeUnauthorized:
		return 403
	case CodeValidation:
		return 400
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeCircuitOpen, CodeGeneration:
		return 503
	case CodeNoCoordinator, CodeDependencyFailed:
		return 409
	default:
		return 500
	}
}
