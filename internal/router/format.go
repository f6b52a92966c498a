// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"
	"time"
)

// InstantText renders the local clock answer, e.g.
//
//	⏰ 03:04 PM
//	📅 Monday 2006-01-02
func InstantText(now time.Time) string {
	return "⏰ " + now.Format("03:04 PM") + "\n📅 " + now.Format("Monday 2006-01-02")
}

// ProvenanceLine names the tier and model that produced an answer.
func ProvenanceLine(t Tier, model string) string {
	if model == "" {
		return t.Label()
	}
	return t.Label() + " · " + model
}

func warningLine(t Tier, diagnostic string) string {
	return "⚠️ " + t.Label() + " failed: " + diagnostic
}

func successText(annotations []string, a Attempt, text string) string {
	lines := make([]string, 0, len(annotations)+2)
	lines = append(lines, annotations...)
	lines = append(lines, ProvenanceLine(a.Tier, a.Endpoint.Model), text)
	return strings.Join(lines, "\n")
}

func failureText(outcomes []Outcome) string {
	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		lines = append(lines, "❌ "+o.Tier.Label()+" failed: "+o.Message)
	}
	return strings.Join(lines, "\n")
}
