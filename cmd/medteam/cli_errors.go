// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/jllopis/medteam/pkg/config"
	"github.com/jllopis/medteam/pkg/errors"
)

// CLIError wraps a medteam error with a hint for the operator.
type CLIError struct {
	Base *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Base: e, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.Base == nil {
		return "unknown error"
	}
	msg := e.Base.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the wrapped error to errors.As.
func (e *CLIError) Unwrap() error {
	if e.Base == nil {
		return nil
	}
	return e.Base
}

// PrintError prints the error as text or as a JSON object.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		payload := map[string]any{"error": map[string]string{
			"code":    string(e.Base.Code),
			"message": e.Base.Message,
			"hint":    e.Hint,
		}}
		_ = json.NewEncoder(w).Encode(payload)
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Base.Code), e.Base.Message)
	if e.Base.Err != nil {
		fmt.Fprintf(w, "  Cause: %s\n", e.Base.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(e, "run 'medteam help' for usage information")
}

// NewConfigError wraps a configuration failure with a hint naming what to fix.
func NewConfigError(err error, provider string) *CLIError {
	e := errors.As(err)
	if e.Code != errors.CodeConfiguration {
		e = errors.New(errors.CodeConfiguration, "configuration error", err)
	}
	hint := "check the configuration file, MEDTEAM_* variables and --set overrides"
	if env := config.CredentialEnv(provider); len(env) > 0 && (strings.Contains(e.Message, "credential") || strings.Contains(e.Message, "API key")) {
		hint = "set " + strings.Join(env, " or ") + " (a .env or groq.env file works too)"
	}
	return NewCLIError(e, hint)
}

// NewRunError explains why a run produced no diagnosis.
func NewRunError(err error) *CLIError {
	e := errors.As(err)
	var hint string
	switch e.Code {
	case errors.CodeRateLimit:
		hint = "the provider kept throttling; lower llm.requests_per_second or raise agent.base_delay"
	case errors.CodeAggregation:
		hint = "the specialists finished but the final synthesis failed; see the specialist outputs above"
	case errors.CodeCanceled:
		hint = "the run was interrupted"
	case errors.CodeInvalidInput:
		hint = "the medical report is empty"
	}
	return NewCLIError(e, hint)
}

// PrintSimpleError prints any error, delegating to CLIError when possible.
func PrintSimpleError(w io.Writer, err error, asJSON bool) {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) && cliErr.Base != nil {
		cliErr.PrintError(w, asJSON)
		return
	}
	if asJSON {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{
			"code":    string(errors.CodeOf(err)),
			"message": err.Error(),
		}})
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeConfiguration:
		return "Configuration"
	case errors.CodeRateLimit:
		return "Rate Limited"
	case errors.CodeUnrecoverable:
		return "Unrecoverable"
	case errors.CodeAggregation:
		return "Aggregation Failed"
	case errors.CodeCanceled:
		return "Canceled"
	case errors.CodeTimeout:
		return "Timeout"
	default:
		return string(code)
	}
}

func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeInvalidInput, errors.CodeConfiguration:
		return 2
	case errors.CodeCanceled:
		return 130
	default:
		return 1
	}
}
