// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/tierchat/internal/router"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_DisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{RoleSystem, "System"},
		{Role("other"), "other"},
	}
	for _, tc := range tests {
		if got := tc.role.DisplayName(); got != tc.want {
			t.Errorf("%s.DisplayName() = %q, want %q", tc.role, got, tc.want)
		}
	}
}

// =============================================================================
// ENTRY TESTS
// =============================================================================

func TestNewEntry(t *testing.T) {
	e := NewUserEntry("كم الساعة")
	if e.Role != RoleUser {
		t.Errorf("Role = %q, want user", e.Role)
	}
	if !strings.HasPrefix(e.ID, "ent_") {
		t.Errorf("ID = %q, want ent_ prefix", e.ID)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if e.IsError {
		t.Error("user entry should not be an error")
	}

	if NewUserEntry("a").ID == NewUserEntry("b").ID {
		t.Error("IDs should be unique")
	}
}

func TestEntryFromResponse(t *testing.T) {
	ok := EntryFromResponse(router.Response{
		RequestID: "req-1",
		Intent:    router.IntentDeepReasoning,
		OK:        true,
		Text:      "answer",
		Source:    router.TierSmart,
	})
	if ok.Role != RoleAssistant || ok.IsError {
		t.Errorf("success entry = %+v", ok)
	}
	if ok.Source != router.TierSmart {
		t.Errorf("Source = %v, want smart", ok.Source)
	}
	if ok.Intent != "deep_reasoning" || ok.RequestID != "req-1" {
		t.Errorf("provenance not carried: %+v", ok)
	}

	failed := EntryFromResponse(router.Response{OK: false, Text: "❌ all failed"})
	if !failed.IsError {
		t.Error("failed response should be an error entry")
	}
	if failed.Text != "❌ all failed" {
		t.Errorf("Text = %q", failed.Text)
	}
}

func TestEntry_Preview(t *testing.T) {
	e := NewEntry(RoleAssistant, "line one\nline two   and more")
	if got := e.Preview(100); got != "line one line two and more" {
		t.Errorf("Preview() = %q", got)
	}
	if got := e.Preview(8); got != "line ..." {
		t.Errorf("Preview(8) = %q", got)
	}
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestTranscript_AppendAndHistory(t *testing.T) {
	tr := NewTranscript(0)
	if _, ok := tr.Last(); ok {
		t.Error("empty transcript should have no last entry")
	}

	for i := 0; i < 5; i++ {
		tr.Append(NewUserEntry(fmt.Sprintf("msg %d", i)))
	}

	if tr.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", tr.Len())
	}

	hist := tr.History(2)
	if len(hist) != 2 || hist[0].Text != "msg 3" || hist[1].Text != "msg 4" {
		t.Errorf("History(2) = %+v", hist)
	}
	if len(tr.History(0)) != 5 || len(tr.History(50)) != 5 {
		t.Error("History should return everything for n <= 0 or n > Len")
	}

	last, ok := tr.Last()
	if !ok || last.Text != "msg 4" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}

	tr.Clear()
	if tr.Len() != 0 {
		t.Error("Clear() should empty the transcript")
	}
}

func TestTranscript_AssignsMissingID(t *testing.T) {
	tr := NewTranscript(0)
	e := tr.Append(Entry{Role: RoleSystem, Text: "hi"})
	if e.ID == "" {
		t.Error("Append should assign an ID")
	}
}

func TestTranscript_DropsOldest(t *testing.T) {
	tr := NewTranscript(3)
	for i := 0; i < 5; i++ {
		tr.Append(NewUserEntry(fmt.Sprintf("msg %d", i)))
	}
	entries := tr.Entries()
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Text != "msg 2" {
		t.Errorf("oldest kept = %q, want msg 2", entries[0].Text)
	}
}

func TestTranscript_EntriesIsCopy(t *testing.T) {
	tr := NewTranscript(0)
	tr.Append(NewUserEntry("original"))
	entries := tr.Entries()
	entries[0].Text = "mutated"
	if last, _ := tr.Last(); last.Text != "original" {
		t.Error("Entries() must return a copy")
	}
}

func TestTranscript_Concurrent(t *testing.T) {
	tr := NewTranscript(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Append(NewUserEntry("x"))
				_ = tr.History(5)
			}
		}()
	}
	wg.Wait()
	if tr.Len() != 500 {
		t.Errorf("Len() = %d, want 500", tr.Len())
	}
}
