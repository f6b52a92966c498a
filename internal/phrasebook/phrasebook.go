// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package phrasebook answers short, known prompts from a table of canned
// replies without contacting any backend.
//
// Lookups are fuzzy: a prompt matches an entry when their similarity ratio
// (the Ratcliff/Obershelp measure used by difflib) reaches the cutoff, so
// small typos and spelling variants still hit.
package phrasebook

import (
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCutoff is the minimum similarity for a match.
const DefaultCutoff = 0.7

// Match is a successful lookup.
type Match struct {
	// Prompt is the stored prompt that matched.
	Prompt string
	// Reply is the canned answer.
	Reply string
	// Score is the similarity in [0, 1].
	Score float64
}

type entry struct {
	prompt string
	key    []string
	reply  string
}

// Book is a set of canned replies. It is safe for concurrent use.
type Book struct {
	cutoff float64
	fold   func(string) string

	mu      sync.RWMutex
	entries []entry
}

// New creates an empty Book. fold normalizes both stored and queried
// prompts; nil means lower-casing with trimmed, collapsed whitespace.
// A cutoff outside (0, 1] falls back to DefaultCutoff.
func New(cutoff float64, fold func(string) string) *Book {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultCutoff
	}
	if fold == nil {
		fold = defaultFold
	}
	return &Book{cutoff: cutoff, fold: fold}
}

// Cutoff returns the minimum similarity for a match.
func (b *Book) Cutoff() float64 {
	return b.cutoff
}

// Learn stores reply for prompt, replacing any entry whose folded prompt is
// identical. Blank prompts or replies are ignored.
func (b *Book) Learn(prompt, reply string) {
	if strings.TrimSpace(prompt) == "" || strings.TrimSpace(reply) == "" {
		return
	}
	key := chars(b.fold(prompt))

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		if equal(b.entries[i].key, key) {
			b.entries[i].prompt = prompt
			b.entries[i].reply = reply
			return
		}
	}
	b.entries = append(b.entries, entry{prompt: prompt, key: key, reply: reply})
}

// Len returns the number of stored entries.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Lookup returns the best entry scoring at least the cutoff. Ties keep the
// entry learned first.
func (b *Book) Lookup(prompt string) (Match, bool) {
	query := chars(b.fold(prompt))
	if len(query) == 0 {
		return Match{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entries) == 0 {
		return Match{}, false
	}

	// seq2 is the one difflib indexes, so it holds the query.
	m := difflib.NewMatcher(nil, query)

	best := Match{}
	found := false
	for _, e := range b.entries {
		m.SetSeq1(e.key)
		if m.RealQuickRatio() < b.cutoff || m.QuickRatio() < b.cutoff {
			continue
		}
		score := m.Ratio()
		if score < b.cutoff {
			continue
		}
		if !found || score > best.Score {
			best = Match{Prompt: e.prompt, Reply: e.reply, Score: score}
			found = true
		}
	}
	return best, found
}

// Similarity returns the difflib ratio between a and b, compared rune by
// rune without any folding.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

// chars splits s into one element per rune.
func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func defaultFold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
