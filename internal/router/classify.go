// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"
	"sync"
)

// ============================================================================
// RULE TABLE
// ============================================================================

// RulesVersion identifies the keyword table below. Bump it whenever a
// keyword is added, removed or moved so logs and the journal can tell
// classifications made under different tables apart.
const RulesVersion = 4

// Rule maps a set of keywords to an intent. A keyword starting or ending
// with a space only matches at a word edge on that side.
type Rule struct {
	Intent   Intent
	Keywords []string
}

// DefaultRules is the classification table in precedence order.
//
// Battery questions ("بطارية") are not an intent of their own: they fall
// through to IntentDefault like any other question. "تاريخ" alone also means
// "history", so only date phrases are Instant.
var DefaultRules = []Rule{
	{
		Intent: IntentInstant,
		Keywords: []string{
			"ساعة", "وقت",
			"تاريخ اليوم", " ما التاريخ", " ما هو التاريخ", " كم التاريخ",
			"what time", "date today",
		},
	},
	{
		Intent: IntentGreeting,
		Keywords: []string{
			"مرحبا", "أهلا", "السلام عليكم", " هلا ",
			"hello", "good morning",
		},
	},
	{
		Intent: IntentDeepReasoning,
		Keywords: []string{
			"فكر", "حلل", "تحليل", "خطة", "خطط", "بعمق",
			"think", "analyze", "analyse", "plan ", "step by step",
		},
	},
}

// ============================================================================
// CLASSIFIER
// ============================================================================

// Match explains a classification.
type Match struct {
	Intent Intent
	// Keyword is the table entry that matched; empty for IntentDefault.
	Keyword string
}

// Reason renders the match for logs and the classify command.
func (m Match) Reason() string {
	if m.Keyword == "" {
		return "no keyword matched"
	}
	return fmt.Sprintf("matched %q (rules v%d)", strings.TrimSpace(m.Keyword), RulesVersion)
}

type compiledKeyword struct {
	source string
	form   string
}

type compiledRule struct {
	intent   Intent
	keywords []compiledKeyword
}

// Classifier evaluates a rule table. It is immutable after construction and
// safe for concurrent use.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles rules, normalizing every keyword the same way
// prompts are normalized so either letter variant may be written.
func NewClassifier(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{intent: r.Intent}
		for _, kw := range r.Keywords {
			form := Normalize(kw)
			if form == "" {
				continue
			}
			if strings.HasPrefix(kw, " ") {
				form = " " + form
			}
			if strings.HasSuffix(kw, " ") {
				form += " "
			}
			cr.keywords = append(cr.keywords, compiledKeyword{source: kw, form: form})
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Explain classifies prompt and reports which keyword decided it. Rules are
// evaluated in table order and the first match wins.
func (c *Classifier) Explain(prompt string) Match {
	text := matchForm(prompt)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw.form) {
				return Match{Intent: r.intent, Keyword: kw.source}
			}
		}
	}
	return Match{Intent: IntentDefault}
}

// Classify returns the intent of prompt.
func (c *Classifier) Classify(prompt string) Intent {
	return c.Explain(prompt).Intent
}

var defaultClassifier = sync.OnceValue(func() *Classifier {
	return NewClassifier(DefaultRules)
})

// DefaultClassifier returns the classifier for DefaultRules.
func DefaultClassifier() *Classifier {
	return defaultClassifier()
}

// Classify returns the intent of prompt under DefaultRules. It is pure and
// deterministic.
func Classify(prompt string) Intent {
	return defaultClassifier().Classify(prompt)
}
