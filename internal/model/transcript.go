// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
)

// DefaultMaxEntries bounds a transcript created with a non-positive limit.
const DefaultMaxEntries = 500

// Transcript is the in-memory chat history. It is safe for concurrent use:
// the REPL appends from its input loop while routed responses arrive from
// background goroutines.
type Transcript struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewTranscript creates a transcript that keeps at most maxEntries entries,
// dropping the oldest first.
func NewTranscript(maxEntries int) *Transcript {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Transcript{maxEntries: maxEntries}
}

// Append adds an entry and returns it.
func (t *Transcript) Append(e Entry) Entry {
	if e.ID == "" {
		e.ID = generateID()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, e)
	if over := len(t.entries) - t.maxEntries; over > 0 {
		// Copy so the dropped prefix can be collected
		t.entries = append([]Entry(nil), t.entries[over:]...)
	}
	return e
}

// Entries returns a copy of all entries, oldest first.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// History returns the last n entries, oldest first. n <= 0 returns all.
func (t *Transcript) History(n int) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := 0
	if n > 0 && n < len(t.entries) {
		start = len(t.entries) - n
	}
	out := make([]Entry, len(t.entries)-start)
	copy(out, t.entries[start:])
	return out
}

// Last returns the newest entry.
func (t *Transcript) Last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear removes all entries.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
