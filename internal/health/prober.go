// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package health

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/ollama"
	"github.com/jeranaias/tierchat/internal/router"
)

const (
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = time.Second
	// DefaultInterval is the time between probe rounds.
	DefaultInterval = 10 * time.Second

	// updatesBuffer is how many snapshots may queue for a slow consumer.
	updatesBuffer = 4
	// offlineWarnEvery throttles repeated "still offline" warnings.
	offlineWarnEvery = time.Minute
)

// Pinger checks whether a backend accepts requests. *ollama.Client
// implements it.
type Pinger interface {
	Ping(ctx context.Context, host string, timeout time.Duration) error
}

// =============================================================================
// STATUS TYPES
// =============================================================================

// Status is the last known reachability of one tier.
type Status struct {
	Tier      router.Tier
	Host      string
	Model     string
	Alive     bool
	CheckedAt time.Time
	Latency   time.Duration
	// Err holds the probe failure, empty when Alive.
	Err string
}

// Label returns "online" or "offline".
func (s Status) Label() string {
	if s.Alive {
		return "online"
	}
	return "offline"
}

// Snapshot is the result of one probe round.
type Snapshot struct {
	At       time.Time
	Statuses map[router.Tier]Status
}

// Status returns the status of t, if it was probed.
func (s Snapshot) Status(t router.Tier) (Status, bool) {
	st, ok := s.Statuses[t]
	return st, ok
}

// Ordered returns the statuses in tier display order.
func (s Snapshot) Ordered() []Status {
	out := make([]Status, 0, len(s.Statuses))
	for _, st := range s.Statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// Summary renders a one-line indicator such as "fast ● smart ● remote ○".
func (s Snapshot) Summary() string {
	parts := make([]string, 0, len(s.Statuses))
	for _, st := range s.Ordered() {
		mark := "○"
		if st.Alive {
			mark = "●"
		}
		parts = append(parts, st.Tier.String()+" "+mark)
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// PROBER
// =============================================================================

// Prober periodically checks every configured tier. Its results are purely
// informational: the router never consults them.
type Prober struct {
	pinger Pinger
	source func() *config.Config
	now    func() time.Time

	updates chan Snapshot
	latest  atomic.Pointer[Snapshot]

	mu       sync.Mutex
	lastSeen map[router.Tier]bool
	warn     map[router.Tier]*rate.Sometimes
	// lastErr holds the most recent probe failure per normalized host.
	lastErr map[string]string
}

// NewProber creates a prober that reads endpoints from source on every
// round, so config edits apply to the next round.
func NewProber(pinger Pinger, source func() *config.Config) *Prober {
	if source == nil {
		source = config.Default
	}
	return &Prober{
		pinger:   pinger,
		source:   source,
		now:      time.Now,
		updates:  make(chan Snapshot, updatesBuffer),
		lastSeen: make(map[router.Tier]bool),
		warn:     make(map[router.Tier]*rate.Sometimes),
		lastErr:  make(map[string]string),
	}
}

// Updates delivers a snapshot after every round. Snapshots are dropped
// when the consumer falls behind.
func (p *Prober) Updates() <-chan Snapshot {
	return p.updates
}

// Latest returns the most recent snapshot, if any round has completed.
func (p *Prober) Latest() (Snapshot, bool) {
	s := p.latest.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Probe reports whether the backend at ep answers within timeout. Any
// failure counts as not alive; its reason is kept for the next snapshot.
func (p *Prober) Probe(ctx context.Context, ep ollama.Endpoint, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	err := p.pinger.Ping(ctx, ep.Host, timeout)

	host := ollama.NormalizeHost(ep.Host)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastErr[host] = err.Error()
		return false
	}
	delete(p.lastErr, host)
	return true
}

func (p *Prober) lastError(host string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr[ollama.NormalizeHost(host)]
}

// Round probes every tier once, publishes the snapshot and returns it.
// Tiers sharing a host are probed once.
func (p *Prober) Round(ctx context.Context) Snapshot {
	cfg := p.source()
	timeout := cfg.Health.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type probeResult struct {
		ep      ollama.Endpoint
		alive   bool
		latency time.Duration
	}
	hosts := make(map[string]*probeResult)
	for _, t := range router.Tiers() {
		ep := router.EndpointFor(cfg, t)
		hosts[ollama.NormalizeHost(ep.Host)] = &probeResult{ep: ep}
	}

	var g errgroup.Group
	for _, res := range hosts {
		g.Go(func() error {
			start := time.Now()
			res.alive = p.Probe(ctx, res.ep, timeout)
			res.latency = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	snap := Snapshot{At: p.now(), Statuses: make(map[router.Tier]Status, len(hosts))}
	for _, t := range router.Tiers() {
		ep := router.EndpointFor(cfg, t)
		res := hosts[ollama.NormalizeHost(ep.Host)]
		st := Status{
			Tier:      t,
			Host:      ep.Host,
			Model:     ep.Model,
			Alive:     res.alive,
			CheckedAt: snap.At,
			Latency:   res.latency,
		}
		if !res.alive {
			st.Err = p.lastError(ep.Host)
		}
		snap.Statuses[t] = st
		p.logStatus(st)
	}

	p.publish(snap)
	return snap
}

// Run probes immediately and then every probe interval until ctx is
// cancelled. Probe failures never stop the loop. Rounds are skipped while
// health checks are disabled in the config.
func (p *Prober) Run(ctx context.Context) error {
	interval := p.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.source().Health.Enabled {
			p.Round(ctx)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if next := p.interval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (p *Prober) interval() time.Duration {
	if d := p.source().Health.Interval(); d > 0 {
		return d
	}
	return DefaultInterval
}

// publish stores snap as latest and offers it to the channel without
// blocking.
func (p *Prober) publish(snap Snapshot) {
	p.latest.Store(&snap)
	select {
	case p.updates <- snap:
	default:
		log.Debug("Health snapshot dropped, consumer is behind")
	}
}

func (p *Prober) logStatus(st Status) {
	fields := log.Fields{
		"tier":       st.Tier.String(),
		"host":       st.Host,
		"latency_ms": st.Latency.Milliseconds(),
	}

	p.mu.Lock()
	prev, seen := p.lastSeen[st.Tier]
	p.lastSeen[st.Tier] = st.Alive
	limiter, ok := p.warn[st.Tier]
	if !ok {
		limiter = &rate.Sometimes{Interval: offlineWarnEvery}
		p.warn[st.Tier] = limiter
	}
	p.mu.Unlock()

	if st.Alive {
		if seen && !prev {
			log.WithFields(fields).Info("Backend back online")
		}
		return
	}

	log.WithFields(fields).WithField("error", st.Err).Debug("Probe failed")
	limiter.Do(func() {
		log.WithFields(fields).Warn("Backend offline")
	})
}
