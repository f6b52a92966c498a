// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the tierchat packages.
//
//   - AtomicWriteFile: crash-safe config writes (temp file, fsync, rename)
//   - TruncateRunes / TruncateWidth: display-safe truncation for log fields,
//     status lines and journal tables
package util
