// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat transcripts to disk.
//
// # Supported Formats
//
//   - Markdown: front matter, per-tier answer counts and one section per entry
//   - JSON: the raw entries with an optional envelope
//
// # Usage
//
//	exp := export.ForPath("session.md", nil)
//	path, err := export.ExportToFile(transcript.Entries(), exp, "session.md", nil)
package export
