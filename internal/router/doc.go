// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router classifies prompts and routes them across inference tiers.
//
// Routes prompts by intent:
// Instant -> local clock, Greeting/Default -> Fast, DeepReasoning -> Remote then Smart
//
// # Key Types
//
//   - Router: Executes attempt chains and formats the answer
//   - Classifier: Ordered, versioned keyword table (first match wins)
//   - Tier: Backend role (Fast, Smart, Remote) with a provenance label
//   - Plan: Ordered attempts for one prompt
//   - Response: Answer text, source tier and per-attempt outcomes
//
// # Failover
//
// Each attempt is a single request bounded by its tier timeout. A failed
// attempt adds a warning line and the next attempt runs; when every attempt
// fails the answer lists one diagnostic per tier. Nothing is retried.
//
// # Usage
//
//	r := router.New(ollama.NewClient(), router.WithRecorder(j))
//	resp, err := r.Handle(ctx, prompt, store.Snapshot())
//	if errors.Is(err, router.ErrEmptyPrompt) {
//	    return
//	}
//	fmt.Println(resp.Text)
package router
