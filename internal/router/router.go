// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/ollama"
	"github.com/jeranaias/tierchat/internal/phrasebook"
	"github.com/jeranaias/tierchat/internal/util"
)

// ErrEmptyPrompt is returned by Handle for empty or whitespace-only prompts.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Sender performs one completion request. *ollama.Client implements it.
type Sender interface {
	Send(ctx context.Context, ep ollama.Endpoint, prompt string) ollama.Result
}

// AttemptRecord describes one backend attempt for persistence.
type AttemptRecord struct {
	RequestID string
	AttemptNo int
	Intent    Intent
	Outcome   Outcome
	At        time.Time
}

// AttemptRecorder persists attempts. Errors are logged and otherwise ignored.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
}

// Option configures a Router.
type Option func(*Router)

// WithClock replaces time.Now, used for instant answers and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRecorder attaches an attempt recorder.
func WithRecorder(rec AttemptRecorder) Option {
	return func(r *Router) {
		r.recorder = rec
	}
}

// WithClassifier replaces the default rule table.
func WithClassifier(c *Classifier) Option {
	return func(r *Router) {
		if c != nil {
			r.classifier = c
		}
	}
}

// Router turns prompts into answers by classifying them and walking the
// resulting attempt chain. It holds no per-request state, so one Router can
// serve any number of concurrent Handle calls.
type Router struct {
	sender     Sender
	classifier *Classifier
	recorder   AttemptRecorder
	now        func() time.Time
}

// New creates a Router that reaches backends through sender.
func New(sender Sender, opts ...Option) *Router {
	r := &Router{
		sender:     sender,
		classifier: DefaultClassifier(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan classifies prompt and returns the plan Handle would execute for it
// under cfg, without contacting any backend.
func (r *Router) Plan(prompt string, cfg *config.Config) (Match, Plan) {
	if cfg == nil {
		cfg = config.Default()
	}
	match := r.classifier.Explain(prompt)
	return match, BuildPlan(match.Intent, prompt, cfg)
}

// Handle answers one prompt using the endpoints in cfg, which should be the
// config snapshot current at submission time. The only error is
// ErrEmptyPrompt; backend failures come back as a Response with OK=false.
//
// Attempts run strictly in order and each is bounded by its tier timeout,
// so the worst case is the sum of the chain's timeouts.
func (r *Router) Handle(ctx context.Context, prompt string, cfg *config.Config) (Response, error) {
	if util.SingleLine(prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	if cfg == nil {
		cfg = config.Default()
	}

	start := r.now()
	match := r.classifier.Explain(prompt)
	resp := Response{
		RequestID: uuid.NewString(),
		Intent:    match.Intent,
		Source:    TierNone,
		Reason:    match.Reason(),
	}

	logger := log.WithFields(log.Fields{
		"request_id":    resp.RequestID,
		"intent":        match.Intent.String(),
		"rules_version": RulesVersion,
	})
	logger.WithField("prompt", util.TruncateRunes(util.SingleLine(prompt), 60)).Debug("Routing prompt")

	if match.Intent == IntentInstant {
		resp.OK = true
		resp.Text = InstantText(r.now())
		resp.Duration = r.now().Sub(start)
		logger.Debug("Answered from local clock")
		return resp, nil
	}

	if reply, ok := r.lookupPhrase(prompt, cfg); ok {
		resp.OK = true
		resp.Text = reply.Reply
		resp.Reason = "phrasebook match"
		resp.Duration = r.now().Sub(start)
		logger.WithField("score", reply.Score).Debug("Answered from phrasebook")
		return resp, nil
	}

	plan := BuildPlan(match.Intent, prompt, cfg)
	var annotations []string

	for i, attempt := range plan.Attempts {
		result := r.sender.Send(ctx, attempt.Endpoint, attempt.Prompt)

		outcome := Outcome{
			Tier:    attempt.Tier,
			Host:    attempt.Endpoint.Host,
			Model:   attempt.Endpoint.Model,
			OK:      result.OK,
			Latency: result.Latency,
		}
		if !result.OK {
			outcome.Kind = result.Kind()
			outcome.Message = result.Text
		} else if result.Stats != nil {
			outcome.TokensPerSec = result.Stats.TokensPerSecond()
		}
		resp.Outcomes = append(resp.Outcomes, outcome)
		r.record(ctx, logger, AttemptRecord{
			RequestID: resp.RequestID,
			AttemptNo: i + 1,
			Intent:    match.Intent,
			Outcome:   outcome,
			At:        r.now(),
		})

		attemptLog := logger.WithFields(log.Fields{
			"attempt":    i + 1,
			"tier":       attempt.Tier.String(),
			"host":       attempt.Endpoint.Host,
			"model":      attempt.Endpoint.Model,
			"latency_ms": result.Latency.Milliseconds(),
		})

		if result.OK {
			attemptLog.WithField("tokens_per_sec", outcome.TokensPerSec).Info("Attempt succeeded")
			resp.OK = true
			resp.Source = attempt.Tier
			resp.Text = successText(annotations, attempt, result.Text)
			resp.Duration = r.now().Sub(start)
			return resp, nil
		}

		attemptLog.WithField("kind", outcome.Kind.String()).Warn("Attempt failed: " + result.Text)
		annotations = append(annotations, warningLine(attempt.Tier, result.Text))
	}

	resp.OK = false
	resp.Text = failureText(resp.Outcomes)
	resp.Duration = r.now().Sub(start)
	logger.WithField("attempts", len(resp.Outcomes)).Warn("All attempts failed")
	return resp, nil
}

func (r *Router) lookupPhrase(prompt string, cfg *config.Config) (phrasebook.Match, bool) {
	if len(cfg.Phrasebook) == 0 {
		return phrasebook.Match{}, false
	}
	book := phrasebook.New(cfg.Routing.PhrasebookCutoff, Normalize)
	for _, p := range cfg.Phrasebook {
		book.Learn(p.Prompt, p.Reply)
	}
	return book.Lookup(prompt)
}

func (r *Router) record(ctx context.Context, logger *log.Entry, rec AttemptRecord) {
	if r.recorder == nil {
		return
	}
	// A cancelled request still gets its attempts written.
	if err := r.recorder.RecordAttempt(context.WithoutCancel(ctx), rec); err != nil {
		logger.WithError(err).Warn("Failed to record attempt")
	}
}
