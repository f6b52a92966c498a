// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalize checks the folding applied before keyword matching.
func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"harakat removed", "مَرْحَباً بِكَ", "مرحبا بك"},
		{"alef variants", "أإآا", "اااا"},
		{"taa marbuta", "الساعة", "الساعه"},
		{"alef maqsura", "مستشفى", "مستشفي"},
		{"tatweel", "جمـــيل", "جميل"},
		{"latin case", "HeLLo  World", "hello world"},
		{"latin accents", "Café", "cafe"},
		{"whitespace", "  a \t b \n", "a b"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

// TestClassify tests intent classification and rule precedence.
func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   Intent
	}{
		// Instant
		{"arabic clock", "ما الساعة؟", IntentInstant},
		{"arabic clock folded", "كم الساعه", IntentInstant},
		{"arabic time", "كم الوقت الآن", IntentInstant},
		{"arabic date", "ما هو التاريخ", IntentInstant},
		{"english time", "What TIME is it?", IntentInstant},
		{"english date", "what's the date today", IntentInstant},
		{"arabic today's date", "ما تاريخ اليوم؟", IntentInstant},

		// Greeting
		{"marhaba tanween", "مرحباً", IntentGreeting},
		{"ahlan hamza", "أهلاً وسهلاً", IntentGreeting},
		{"ahlan plain", "اهلا", IntentGreeting},
		{"salam", "السلام عليكم ورحمة الله", IntentGreeting},
		{"english hello", "Hello there", IntentGreeting},
		{"good morning", "Good Morning!", IntentGreeting},
		{"hala word", "هلا والله", IntentGreeting},

		// DeepReasoning
		{"think deeply", "فكر بعمق في هذه المشكلة", IntentDeepReasoning},
		{"think shadda", "فكّر جيداً", IntentDeepReasoning},
		{"analyze arabic", "حلل هذه البيانات", IntentDeepReasoning},
		{"plan arabic", "ضع خطة للمشروع", IntentDeepReasoning},
		{"step by step", "Explain step by step", IntentDeepReasoning},
		{"think english", "I need you to THINK about this", IntentDeepReasoning},
		{"analyse british", "analyse the results", IntentDeepReasoning},
		{"plan at end", "give me a plan.", IntentDeepReasoning},

		// Default
		{"joke", "tell me a joke", IntentDefault},
		{"planet not plan", "planet earth facts", IntentDefault},
		{"battery", "كم نسبة البطارية", IntentDefault},
		{"capital", "ما عاصمة فرنسا", IntentDefault},
		{"history is not a date", "اشرح تاريخ مصر القديمة", IntentDefault},

		// Words that only contain a keyword
		{"history analysis", "حلل تاريخ الدولة العثمانية بعمق", IntentDeepReasoning},
		{"hilal club", "حلل أسباب خسارة نادي الهلال", IntentDeepReasoning},

		// Precedence
		{"instant beats greeting", "مرحبا، كم الساعة", IntentInstant},
		{"greeting beats deep", "hello, think about this", IntentGreeting},
		{"instant beats deep", "analyze what time it is", IntentInstant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.prompt), "prompt %q", tt.prompt)
		})
	}
}

// TestClassify_Deterministic guards against hidden state in the classifier.
func TestClassify_Deterministic(t *testing.T) {
	prompts := []string{"ما الساعة؟", "hello", "فكر بعمق", "random"}
	for _, p := range prompts {
		first := Classify(p)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Classify(p))
		}
	}
}

// TestExplain reports the deciding keyword.
func TestExplain(t *testing.T) {
	m := DefaultClassifier().Explain("ضع خطة للمشروع")
	assert.Equal(t, IntentDeepReasoning, m.Intent)
	assert.Equal(t, "خطة", m.Keyword)
	assert.Contains(t, m.Reason(), "خطة")

	m = DefaultClassifier().Explain("tell me a joke")
	assert.Equal(t, IntentDefault, m.Intent)
	assert.Empty(t, m.Keyword)
	assert.Equal(t, "no keyword matched", m.Reason())
}

// TestNewClassifier_CustomRules covers tables other than the default one.
func TestNewClassifier_CustomRules(t *testing.T) {
	c := NewClassifier([]Rule{
		{Intent: IntentGreeting, Keywords: []string{"", " hi "}},
		{Intent: IntentInstant, Keywords: []string{"بطارية"}},
	})

	assert.Equal(t, IntentGreeting, c.Classify("hi!"))
	assert.Equal(t, IntentDefault, c.Classify("this"), "edge-anchored keyword must not match inside words")
	assert.Equal(t, IntentInstant, c.Classify("البطاريه"), "table keywords are folded like prompts")
}

func TestIntent_String(t *testing.T) {
	for _, i := range []Intent{IntentDefault, IntentInstant, IntentGreeting, IntentDeepReasoning} {
		parsed, err := ParseIntent(i.String())
		assert.NoError(t, err)
		assert.Equal(t, i, parsed)
		assert.NotEmpty(t, i.Description())
	}
	_, err := ParseIntent("battery")
	assert.Error(t, err)
}

func TestTier_Labels(t *testing.T) {
	seen := map[string]bool{}
	for _, tier := range Tiers() {
		label := tier.Label()
		assert.NotEmpty(t, label)
		assert.False(t, seen[label], "labels must be distinct")
		seen[label] = true

		parsed, err := ParseTier(tier.String())
		assert.NoError(t, err)
		assert.Equal(t, tier, parsed)
	}
	assert.Empty(t, TierNone.Label())

	next, ok := TierRemote.Fallback()
	assert.True(t, ok)
	assert.Equal(t, TierSmart, next)
	_, ok = TierSmart.Fallback()
	assert.False(t, ok)

	_, err := ParseTier("gpu")
	assert.Error(t, err)
}
