// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/jllopis/agentnet/pkg/errors"
)

// CLIError wraps a typed error with a hint for the operator.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(e *errors.Error, hint string) *CLIError {
	return &CLIError{Err: e, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error to errors.As.
func (e *CLIError) Unwrap() error { return e.Err }

// WrapConnectionError wraps a connection error with CLI hints.
func WrapConnectionError(err error, url string) *CLIError {
	e := errors.New(errors.CodeInternal, "connection failed", err).
		WithContext("url", url).
		WithRecoverable(true)
	return NewCLIError(e, fmt.Sprintf("check that 'agentnet serve' is running at %s", url))
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	e := errors.Validation("invalid argument: %s", reason).
		WithContext("argument", arg)
	return NewCLIError(e, "run 'agentnet help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	e := errors.New(errors.CodeValidation, "configuration error", err).
		WithContext("config_path", configPath)
	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(e, hint)
}

// hintFor suggests a next step for errors returned by the server.
func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeUnauthorized:
		return "pass --caller and --scopes for an identity that owns the network"
	case errors.CodeNotFound:
		return "check the id; networks are deleted after their retention period"
	case errors.CodeRateLimit:
		return "too many submissions; wait and retry"
	case errors.CodeNoCoordinator:
		return "add a coordinator agent to the network"
	case errors.CodeTimeout:
		return "raise timeout_seconds on the network or --timeout on the CLI"
	case errors.CodeValidation:
		return "run 'agentnet help' for usage information"
	}
	return ""
}

// PrintError writes err to stderr, as JSON when asJSON is set.
func PrintError(err error, asJSON bool) {
	var cli *CLIError
	if !stderrors.As(err, &cli) {
		e := errors.As(err)
		cli = NewCLIError(e, hintFor(e.Code))
	}
	if asJSON {
		payload, mErr := json.Marshal(map[string]any{"error": cli.Err, "hint": cli.Hint})
		if mErr == nil {
			fmt.Fprintln(os.Stderr, string(payload))
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", cli.Err.Code, cli.Err.Message)
	if wait, ok := errors.WaitHint(cli.Err); ok {
		fmt.Fprintf(os.Stderr, "  Retry after: %s\n", wait)
	}
	if cli.Hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", cli.Hint)
	}
}
