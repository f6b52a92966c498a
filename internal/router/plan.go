// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/ollama"
)

// EndpointFor returns the endpoint cfg configures for tier t.
func EndpointFor(cfg *config.Config, t Tier) ollama.Endpoint {
	var tc config.TierConfig
	switch t {
	case TierFast:
		tc = cfg.Tiers.Fast
	case TierSmart:
		tc = cfg.Tiers.Smart
	case TierRemote:
		tc = cfg.Tiers.Remote
	default:
		return ollama.Endpoint{}
	}
	return ollama.Endpoint{
		Host:    tc.Host,
		Model:   tc.Model,
		Timeout: tc.Timeout(),
	}
}

// WrapDeep places prompt into template at its "%s" placeholder. A template
// without a placeholder gets the prompt appended on a new paragraph.
func WrapDeep(template, prompt string) string {
	if template == "" {
		return prompt
	}
	if !strings.Contains(template, "%s") {
		return template + "\n\n" + prompt
	}
	return strings.Replace(template, "%s", prompt, 1)
}

// BuildPlan turns an intent into its attempt chain using the endpoints in
// cfg. Instant prompts need no backend and get an empty plan.
func BuildPlan(intent Intent, prompt string, cfg *config.Config) Plan {
	plan := Plan{Intent: intent}

	switch intent {
	case IntentInstant:
		return plan

	case IntentDeepReasoning:
		wrapped := WrapDeep(cfg.Routing.DeepTemplate, prompt)
		tier := TierRemote
		for {
			plan.Attempts = append(plan.Attempts, Attempt{
				Tier:     tier,
				Endpoint: EndpointFor(cfg, tier),
				Prompt:   wrapped,
			})
			next, ok := tier.Fallback()
			if !ok {
				break
			}
			tier = next
		}

	default:
		plan.Attempts = []Attempt{{
			Tier:     TierFast,
			Endpoint: EndpointFor(cfg, TierFast),
			Prompt:   prompt,
		}}
	}

	return plan
}
