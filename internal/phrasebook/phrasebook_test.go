// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package phrasebook

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"hello", "hello", 1.0},
		{"hello", "helo", 8.0 / 9.0},
		{"abcd", "bcde", 0.75},
		{"abc", "xyz", 0.0},
		{"من انت", "من انت", 1.0},
	}
	for _, tc := range tests {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			assert.InDelta(t, tc.want, Similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestLookup_ExactAndFuzzy(t *testing.T) {
	book := New(0.7, nil)
	book.Learn("who are you", "A local assistant.")
	book.Learn("what can you do", "Route your questions to the right model.")

	m, ok := book.Lookup("Who are you")
	require.True(t, ok)
	assert.Equal(t, "A local assistant.", m.Reply)
	assert.InDelta(t, 1.0, m.Score, 1e-9)

	m, ok = book.Lookup("who ar you")
	require.True(t, ok, "one missing letter should still match")
	assert.Equal(t, "who are you", m.Prompt)
	assert.GreaterOrEqual(t, m.Score, 0.7)

	_, ok = book.Lookup("explain quantum tunnelling")
	assert.False(t, ok)
}

func TestLookup_CustomFold(t *testing.T) {
	fold := func(s string) string {
		return strings.NewReplacer("أ", "ا", "إ", "ا").Replace(strings.TrimSpace(s))
	}
	book := New(0.7, fold)
	book.Learn("من أنت", "أنا مساعد يعمل على أجهزتك.")

	m, ok := book.Lookup("من انت")
	require.True(t, ok)
	assert.Equal(t, "أنا مساعد يعمل على أجهزتك.", m.Reply)
	assert.InDelta(t, 1.0, m.Score, 1e-9)
}

func TestLookup_BestScoreWins(t *testing.T) {
	book := New(0.5, nil)
	book.Learn("good night", "sleep well")
	book.Learn("good morning", "morning!")

	m, ok := book.Lookup("good mornin")
	require.True(t, ok)
	assert.Equal(t, "morning!", m.Reply)
}

func TestLookup_EmptyBookAndPrompt(t *testing.T) {
	book := New(0.7, nil)
	_, ok := book.Lookup("anything")
	assert.False(t, ok)

	book.Learn("hi", "hello")
	_, ok = book.Lookup("   ")
	assert.False(t, ok)
}

func TestLearn_ReplacesAndIgnoresBlank(t *testing.T) {
	book := New(0.7, nil)
	book.Learn("ping", "pong")
	book.Learn("  PING ", "pong2")
	book.Learn("", "ignored")
	book.Learn("ignored", " ")

	assert.Equal(t, 1, book.Len())
	m, ok := book.Lookup("ping")
	require.True(t, ok)
	assert.Equal(t, "pong2", m.Reply)
}

func TestNew_CutoffFallback(t *testing.T) {
	assert.Equal(t, DefaultCutoff, New(0, nil).Cutoff())
	assert.Equal(t, DefaultCutoff, New(1.5, nil).Cutoff())
	assert.Equal(t, 0.9, New(0.9, nil).Cutoff())
}

func TestBook_Concurrent(t *testing.T) {
	book := New(0.7, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			book.Learn(fmt.Sprintf("prompt %d", i), "reply")
		}(i)
		go func() {
			defer wg.Done()
			book.Lookup("prompt 1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, book.Len())
}
