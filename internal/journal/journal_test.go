// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tierchat/internal/ollama"
	"github.com/jeranaias/tierchat/internal/router"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, Attempt{
		RequestID: "req-1", AttemptNo: 1, Intent: router.IntentDeepReasoning,
		Tier: router.TierRemote, Host: "10.0.0.5", Model: "qwen2.5:32b",
		OK: false, ErrorType: "server_fault", Message: "model not found or broken (HTTP 500)",
		Latency: 120 * time.Millisecond, CreatedAt: base,
	}))
	require.NoError(t, j.Record(ctx, Attempt{
		RequestID: "req-1", AttemptNo: 2, Intent: router.IntentDeepReasoning,
		Tier: router.TierSmart, Host: "127.0.0.1", Model: "qwen2.5:7b",
		OK: true, Latency: 2 * time.Second, CreatedAt: base.Add(time.Second),
	}))

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, router.TierSmart, got[0].Tier, "newest first")
	assert.True(t, got[0].OK)
	assert.Equal(t, 2*time.Second, got[0].Latency)
	assert.Equal(t, base.Add(time.Second).UnixMilli(), got[0].CreatedAt.UnixMilli())

	assert.Equal(t, router.TierRemote, got[1].Tier)
	assert.Equal(t, router.IntentDeepReasoning, got[1].Intent)
	assert.Equal(t, "server_fault", got[1].ErrorType)
	assert.Equal(t, "model not found or broken (HTTP 500)", got[1].Message)
	assert.Equal(t, router.RulesVersion, got[1].RulesVersion)
}

func TestRecent_Limit(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit+5; i++ {
		require.NoError(t, j.Record(ctx, Attempt{RequestID: "r", AttemptNo: 1, Tier: router.TierFast, OK: true}))
	}

	got, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultLimit)
}

func TestRecordAttempt_FromRouter(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	at := time.Now()

	var rec router.AttemptRecorder = j
	require.NoError(t, rec.RecordAttempt(ctx, router.AttemptRecord{
		RequestID: "abc",
		AttemptNo: 1,
		Intent:    router.IntentGreeting,
		Outcome: router.Outcome{
			Tier:    router.TierFast,
			Host:    "127.0.0.1",
			Model:   "qwen2.5:1.5b",
			OK:      false,
			Kind:    ollama.ErrTypeTimeout,
			Message: "request timed out after 30s",
			Latency: 30 * time.Second,
		},
		At: at,
	}))

	got, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].RequestID)
	assert.Equal(t, router.IntentGreeting, got[0].Intent)
	assert.Equal(t, "timeout", got[0].ErrorType)
	assert.Equal(t, at.UnixMilli(), got[0].CreatedAt.UnixMilli())
}

func TestStats(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	failAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []Attempt{
		{Tier: router.TierRemote, OK: false, Latency: 100 * time.Millisecond, CreatedAt: failAt},
		{Tier: router.TierRemote, OK: true, Latency: 300 * time.Millisecond, CreatedAt: failAt.Add(time.Minute)},
		{Tier: router.TierFast, OK: true, Latency: 50 * time.Millisecond},
	}
	for _, r := range records {
		r.RequestID = "x"
		r.AttemptNo = 1
		require.NoError(t, j.Record(ctx, r))
	}

	stats, err := j.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	remote := stats[router.TierRemote]
	assert.Equal(t, 2, remote.Attempts)
	assert.Equal(t, 1, remote.Successes)
	assert.InDelta(t, 0.5, remote.SuccessRate(), 1e-9)
	assert.Equal(t, 200*time.Millisecond, remote.AvgLatency)
	assert.Equal(t, failAt.UnixMilli(), remote.LastFailure.UnixMilli())

	fast := stats[router.TierFast]
	assert.Equal(t, 1.0, fast.SuccessRate())
	assert.True(t, fast.LastFailure.IsZero())

	assert.Equal(t, 0.0, TierStats{}.SuccessRate())
}

func TestPrune(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.Record(ctx, Attempt{RequestID: "old", Tier: router.TierFast, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, j.Record(ctx, Attempt{RequestID: "new", Tier: router.TierFast, CreatedAt: now}))

	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].RequestID)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, Attempt{RequestID: "keep", Tier: router.TierSmart}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].RequestID)
}

func TestClosed(t *testing.T) {
	j := openTemp(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "double close is harmless")

	ctx := context.Background()
	assert.ErrorIs(t, j.Record(ctx, Attempt{}), ErrClosed)
	_, err := j.Recent(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = j.Stats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
