// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/jeranaias/tierchat/internal/router"
	"github.com/jeranaias/tierchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// ENTRY TYPE
// =============================================================================

// Entry is one line of the chat transcript.
type Entry struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Text      string      `json:"text"`
	IsError   bool        `json:"is_error,omitempty"`
	Source    router.Tier `json:"source,omitempty"`
	Intent    string      `json:"intent,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(role Role, text string) Entry {
	return Entry{
		ID:        generateID(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewUserEntry creates a user entry.
func NewUserEntry(text string) Entry {
	return NewEntry(RoleUser, text)
}

// NewSystemEntry creates a system entry, for command output and notices.
func NewSystemEntry(text string, isError bool) Entry {
	e := NewEntry(RoleSystem, text)
	e.IsError = isError
	return e
}

// EntryFromResponse converts a routed response into an assistant entry.
// A failed response becomes an error entry carrying the diagnostics.
func EntryFromResponse(resp router.Response) Entry {
	e := NewEntry(RoleAssistant, resp.Text)
	e.IsError = !resp.OK
	e.Source = resp.Source
	e.Intent = resp.Intent.String()
	e.RequestID = resp.RequestID
	return e
}

// Preview returns the entry text on one line, cut to maxLen runes.
func (e Entry) Preview(maxLen int) string {
	return util.TruncateRunes(util.SingleLine(e.Text), maxLen)
}

// generateID creates a unique entry ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "ent_" + hex.EncodeToString(bytes)
}
