// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed error taxonomy shared by every medteam
// component. Terminal states cross package boundaries as *Error values with a
// Code, never as panics.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies medteam errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeConfiguration indicates a startup configuration problem
	// (missing credential, invalid template). Always fatal.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeRateLimit indicates the completion service throttled the request.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeUnrecoverable indicates a remote failure that retrying cannot fix.
	CodeUnrecoverable ErrorCode = "UNRECOVERABLE"

	// CodeAggregation indicates the final synthesis step failed.
	CodeAggregation ErrorCode = "AGGREGATION_FAILED"

	// CodeCanceled indicates the caller aborted the run.
	CodeCanceled ErrorCode = "CANCELED"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"
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

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Cause       string                 `json:"cause,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
		Context:     e.Context,
		Attributes:  e.Attributes,
	}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return json.Marshal(out)
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

// FromStatus classifies a remote failure by its HTTP-like status code.
// 429 becomes a recoverable CodeRateLimit error; anything else is
// CodeUnrecoverable and keeps the original status.
func FromStatus(status int, msg string, cause error) *Error {
	if status == 429 {
		return New(CodeRateLimit, msg, cause).WithRecoverable(true)
	}
	e := New(CodeUnrecoverable, msg, cause)
	if status > 0 {
		e.StatusCode = status
	}
	return e
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *Error) WithAttribute(key, value string) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As attempts to convert an error to an *Error.
// Returns the error as *Error if one is in the chain, or wraps it otherwise.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if stderrors.As(err, &me) {
		return me
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first *Error in the chain, or "" when none.
func CodeOf(err error) ErrorCode {
	var me *Error
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeCanceled:
		return 499
	case CodeUnrecoverable, CodeAggregation:
		return 502
	default:
		return 500
	}
}
