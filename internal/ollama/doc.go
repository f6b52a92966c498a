// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama is the inference client for Ollama-compatible backends.
//
// A backend is described by an Endpoint (host, model, timeout). The client
// issues exactly one non-streaming POST to /api/generate per Send and folds
// every outcome into a Result. Failures never escape as Go errors from Send;
// they are carried in Result.Err as a *ClientError whose Type is one of the
// fixed failure kinds (timeout, unreachable, server fault, malformed
// response, invalid config).
//
// # Usage
//
//	client := ollama.NewClient()
//	res := client.Send(ctx, ollama.Endpoint{
//	    Host:    "10.0.0.5",
//	    Model:   "qwen2.5:7b",
//	    Timeout: 30 * time.Second,
//	}, "hello")
//	if !res.OK {
//	    fmt.Println(res.Text) // human readable diagnostic
//	}
//
// Hosts may be given without a scheme or port: "10.0.0.5" is expanded to
// "http://10.0.0.5:11434".
package ollama
