// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the tierchat command line.
//
// The commands are thin collaborators of the router: they feed prompt
// strings in and print chat entries out.
//
// # Commands
//
//   - chat: interactive REPL with background routing and a health line
//   - ask: route one prompt; exit status 1 when no backend answered
//   - classify: show intent and attempt chain without contacting a backend
//   - probe: one health round as a table
//   - config path|get|set|show|keys: inspect and change settings
//   - journal: recent attempts and per-tier success rates
//
// Every command accepts --config, --log-level and --json.
package cli
