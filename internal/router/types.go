// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tierchat/internal/ollama"
)

// ============================================================================
// TIER TYPE
// ============================================================================

// Tier identifies a backend role.
type Tier int

const (
	// TierNone marks answers produced without any backend (clock, phrasebook).
	TierNone Tier = iota
	// TierFast is the small local model for everyday prompts.
	TierFast
	// TierSmart is the larger local model, used as backup for reasoning.
	TierSmart
	// TierRemote is the primary reasoner on another machine.
	TierRemote
)

// String returns the config/log name of the tier.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierFast:
		return "fast"
	case TierSmart:
		return "smart"
	case TierRemote:
		return "remote"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Label returns the provenance label shown to the user.
func (t Tier) Label() string {
	switch t {
	case TierFast:
		return "⚡ Fast (local)"
	case TierSmart:
		return "🧠 Smart (local backup)"
	case TierRemote:
		return "🛰️ Remote (primary)"
	default:
		return ""
	}
}

// Fallback returns the tier to try when t fails, if any.
func (t Tier) Fallback() (Tier, bool) {
	if t == TierRemote {
		return TierSmart, true
	}
	return TierNone, false
}

// Tiers lists every backend tier in display order.
func Tiers() []Tier {
	return []Tier{TierFast, TierSmart, TierRemote}
}

// ParseTier parses a tier name as written by String.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return TierFast, nil
	case "smart":
		return TierSmart, nil
	case "remote":
		return TierRemote, nil
	case "none", "":
		return TierNone, nil
	}
	return TierNone, fmt.Errorf("unknown tier %q", s)
}

// ============================================================================
// INTENT
// ============================================================================

// Intent is the coarse category a prompt is classified into.
type Intent int

const (
	// IntentDefault is any prompt no rule matched.
	IntentDefault Intent = iota
	// IntentInstant is a time/date question answered from the local clock.
	IntentInstant
	// IntentGreeting is small talk answered by the fast tier only.
	IntentGreeting
	// IntentDeepReasoning asks for analysis or planning.
	IntentDeepReasoning
)

// String returns the name of the intent.
func (i Intent) String() string {
	switch i {
	case IntentDefault:
		return "default"
	case IntentInstant:
		return "instant"
	case IntentGreeting:
		return "greeting"
	case IntentDeepReasoning:
		return "deep_reasoning"
	default:
		return fmt.Sprintf("Intent(%d)", int(i))
	}
}

// Description returns a short explanation of how the intent is served.
func (i Intent) Description() string {
	switch i {
	case IntentInstant:
		return "answered from the local clock, no backend"
	case IntentGreeting:
		return "fast tier only"
	case IntentDeepReasoning:
		return "remote tier, then smart tier on failure"
	default:
		return "fast tier"
	}
}

// ParseIntent parses an intent name as written by String.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default", "":
		return IntentDefault, nil
	case "instant":
		return IntentInstant, nil
	case "greeting":
		return IntentGreeting, nil
	case "deep_reasoning":
		return IntentDeepReasoning, nil
	}
	return IntentDefault, fmt.Errorf("unknown intent %q", s)
}

// ============================================================================
// PLAN
// ============================================================================

// Attempt is one step of a routing plan.
type Attempt struct {
	Tier     Tier
	Endpoint ollama.Endpoint
	// Prompt is the text actually sent, after any template wrapping.
	Prompt string
}

// Plan is the ordered attempt chain for one prompt. Attempts run in order,
// stop at the first success and are never retried.
type Plan struct {
	Intent   Intent
	Attempts []Attempt
}

// Tiers returns the tiers of the plan in attempt order.
func (p Plan) Tiers() []Tier {
	tiers := make([]Tier, len(p.Attempts))
	for i, a := range p.Attempts {
		tiers[i] = a.Tier
	}
	return tiers
}

// Budget returns the worst-case wall time of the plan: the sum of every
// attempt's timeout.
func (p Plan) Budget() time.Duration {
	var total time.Duration
	for _, a := range p.Attempts {
		timeout := a.Endpoint.Timeout
		if timeout <= 0 {
			timeout = ollama.DefaultTimeout
		}
		total += timeout
	}
	return total
}

// ============================================================================
// RESPONSE
// ============================================================================

// Outcome records how one attempt went.
type Outcome struct {
	Tier    Tier
	Host    string
	Model   string
	OK      bool
	Kind    ollama.ErrorType
	Message string
	Latency time.Duration
	// TokensPerSec is the generation speed the backend reported, 0 if unknown.
	TokensPerSec float64
}

// Response is the router's answer to one prompt.
type Response struct {
	RequestID string
	Intent    Intent
	OK        bool
	// Text is the formatted answer or the combined diagnostics.
	Text string
	// Source is the tier that produced Text; TierNone for local answers.
	Source Tier
	// Reason says why the prompt was routed as it was.
	Reason   string
	Outcomes []Outcome
	Duration time.Duration
}

// Attempts returns the number of backend calls made.
func (r Response) Attempts() int {
	return len(r.Outcomes)
}
