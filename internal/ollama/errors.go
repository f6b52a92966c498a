// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents a failed backend call.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so errors.Is(err, ErrTimeout) matches any timeout.
func (e *ClientError) Is(target error) bool {
	var other *ClientError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

// ErrorType categorizes client failures.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeTimeout
	ErrTypeUnreachable
	ErrTypeServerFault
	ErrTypeMalformedResponse
	ErrTypeConfigInvalid
)

// String returns the stable name used in logs and the journal.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeUnreachable:
		return "unreachable"
	case ErrTypeServerFault:
		return "server_fault"
	case ErrTypeMalformedResponse:
		return "malformed_response"
	case ErrTypeConfigInvalid:
		return "config_invalid"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks.
var (
	ErrTimeout           = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrUnreachable       = &ClientError{Type: ErrTypeUnreachable, Message: "cannot reach server"}
	ErrServerFault       = &ClientError{Type: ErrTypeServerFault, Message: "model not found or broken"}
	ErrMalformedResponse = &ClientError{Type: ErrTypeMalformedResponse, Message: "could not decode server response"}
	ErrNoHost            = &ClientError{Type: ErrTypeConfigInvalid, Message: "no host configured"}
)

func timeoutError(timeout time.Duration, cause error) *ClientError {
	return &ClientError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("request timed out after %s", timeout),
		Cause:   cause,
	}
}

func unreachableError(host string, cause error) *ClientError {
	return &ClientError{
		Type:    ErrTypeUnreachable,
		Message: fmt.Sprintf("cannot reach server at %s, verify the address", host),
		Cause:   cause,
	}
}

func serverFaultError(status int, detail string) *ClientError {
	msg := fmt.Sprintf("model not found or broken (HTTP %d)", status)
	if detail != "" {
		msg += ": " + detail
	}
	return &ClientError{Type: ErrTypeServerFault, Message: msg}
}

func malformedError(cause error) *ClientError {
	return &ClientError{
		Type:    ErrTypeMalformedResponse,
		Message: ErrMalformedResponse.Message,
		Cause:   cause,
	}
}
