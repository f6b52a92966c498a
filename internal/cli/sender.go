// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"sync"
	"time"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/ollama"
)

// liveSender is an ollama client that follows routing.num_ctx in the live
// config, rebuilding the client when the value changes.
type liveSender struct {
	store *config.Store

	mu     sync.Mutex
	client *ollama.Client
}

func newLiveSender(store *config.Store) *liveSender {
	return &liveSender{store: store}
}

func (s *liveSender) current() *ollama.Client {
	numCtx := s.store.Snapshot().Routing.NumCtx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.client.NumCtx() != numCtx {
		s.client = ollama.NewClientWithConfig(&ollama.ClientConfig{NumCtx: numCtx})
	}
	return s.client
}

// Send implements router.Sender.
func (s *liveSender) Send(ctx context.Context, ep ollama.Endpoint, prompt string) ollama.Result {
	return s.current().Send(ctx, ep, prompt)
}

// Ping implements health.Pinger.
func (s *liveSender) Ping(ctx context.Context, host string, timeout time.Duration) error {
	return s.current().Ping(ctx, host, timeout)
}
