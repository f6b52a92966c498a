// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

// foldLetter unifies letters that casual Arabic writing uses interchangeably.
func foldLetter(r rune) rune {
	switch r {
	case 'ة':
		return 'ه'
	case 'ى':
		return 'ي'
	}
	return r
}

// newFolder builds the normalization chain. Transformers carry state, so
// each call gets its own chain.
func newFolder() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == tatweel })),
		runes.Map(foldLetter),
		cases.Fold(),
		norm.NFC,
	)
}

// Normalize folds text for keyword matching: case folding, removal of
// combining marks (Arabic harakat, hamza and madda on alef, Latin accents),
// ة→ه, ى→ي, no tatweel, and single spaces.
func Normalize(s string) string {
	folded, _, err := transform.String(newFolder(), s)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}

// matchForm prepares text for substring matching: normalized, punctuation
// turned into spaces, and padded with one space on each side so keywords
// may anchor on word edges.
func matchForm(s string) string {
	n := Normalize(s)
	n = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, n)
	return " " + strings.Join(strings.Fields(n), " ") + " "
}
