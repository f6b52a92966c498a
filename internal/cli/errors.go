// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit codes and error classification for tierchat commands.
//
// Commands always return errors; run() decides how to display them and
// which exit code to use.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/tierchat/internal/config"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general error, including a prompt that no backend answered
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates an invalid configuration file or setting
	ExitConfigError = 3
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ExitError ends the process with Code after the command already reported
// the problem itself. run() does not print it again.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// UsageError reports a bad argument.
type UsageError struct {
	Arg    string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Arg, e.Reason)
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var validateErrs config.ValidateErrors
	if errors.As(err, &validateErrs) {
		return ExitConfigError
	}
	var validationErr config.ValidationError
	if errors.As(err, &validationErr) {
		return ExitConfigError
	}

	return ExitGeneralError
}
