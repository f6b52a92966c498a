// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the chat entries shown to the user.
//
// An Entry is a (role, text, isError) triple plus provenance. User prompts
// become user entries; every routed response becomes exactly one assistant
// entry, flagged as an error when all backends failed.
//
// # Usage
//
//	t := model.NewTranscript(0)
//	t.Append(model.NewUserEntry(prompt))
//	resp, _ := r.Handle(ctx, prompt, store.Snapshot())
//	t.Append(model.EntryFromResponse(resp))
package model
