// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import "time"

// =============================================================================
// ENDPOINT
// =============================================================================

// Endpoint identifies one inference backend.
type Endpoint struct {
	// Host is an address or hostname, scheme and port optional.
	Host string
	// Model is the model name the backend should load (e.g. "qwen2.5:7b").
	Model string
	// Timeout bounds the whole request, response body included.
	Timeout time.Duration
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Options contains model parameters for inference.
type Options struct {
	NumCtx int `json:"num_ctx,omitempty"` // Context window size
}

// GenerateRequest is the request body for the /api/generate endpoint.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// GenerateResponse is the response from the /api/generate endpoint.
// Response is a pointer so a missing field can be told apart from an empty
// completion.
type GenerateResponse struct {
	Model         string  `json:"model"`
	Response      *string `json:"response"`
	Done          bool    `json:"done"`
	DoneReason    string  `json:"done_reason,omitempty"`
	TotalDuration int64   `json:"total_duration,omitempty"` // nanoseconds
	EvalCount     int     `json:"eval_count,omitempty"`
	EvalDuration  int64   `json:"eval_duration,omitempty"` // nanoseconds
}

// APIError is the error body Ollama returns with non-2xx statuses.
type APIError struct {
	Error string `json:"error"`
}

// TokensPerSecond calculates the generation speed reported by the backend.
func (r *GenerateResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	return float64(r.EvalCount) / (float64(r.EvalDuration) / 1e9)
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the normalized outcome of a single Send.
type Result struct {
	// OK is true when the backend answered with a response field.
	OK bool
	// Text is the model output on success and the diagnostic on failure.
	Text string
	// Err is set when OK is false.
	Err *ClientError
	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int
	// Latency is the wall time of the attempt.
	Latency time.Duration
	// Stats carries backend-reported timings when available.
	Stats *GenerateResponse
}

// Kind returns the failure kind, or ErrTypeUnknown for a success.
func (r Result) Kind() ErrorType {
	if r.Err == nil {
		return ErrTypeUnknown
	}
	return r.Err.Type
}

func failed(err *ClientError, status int, latency time.Duration) Result {
	return Result{
		OK:         false,
		Text:       err.Message,
		Err:        err,
		StatusCode: status,
		Latency:    latency,
	}
}
