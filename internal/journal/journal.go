// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package journal persists one row per backend attempt in a local SQLite
// database, for the journal command and for diagnosing flaky backends.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/tierchat/internal/router"
)

// DefaultLimit is the number of rows Recent returns when limit <= 0.
const DefaultLimit = 20

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal is closed")

// Attempt is one journal row.
type Attempt struct {
	ID           int64
	RequestID    string
	AttemptNo    int
	Intent       router.Intent
	Tier         router.Tier
	Host         string
	Model        string
	OK           bool
	ErrorType    string
	Message      string
	Latency      time.Duration
	RulesVersion int
	CreatedAt    time.Time
}

// TierStats aggregates the attempts made against one tier.
type TierStats struct {
	Tier        router.Tier
	Attempts    int
	Successes   int
	AvgLatency  time.Duration
	LastFailure time.Time
}

// SuccessRate returns Successes/Attempts, or 0 without attempts.
func (s TierStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// Journal is an SQLite-backed attempt log. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database file.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	return j.db.Close()
}

// Record inserts one attempt. A zero CreatedAt is set to now.
func (j *Journal) Record(ctx context.Context, a Attempt) error {
	if j.closed.Load() {
		return ErrClosed
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.RulesVersion == 0 {
		a.RulesVersion = router.RulesVersion
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO attempts (request_id, attempt_no, intent, tier, host, model, ok,
			error_type, message, latency_ms, rules_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.AttemptNo, a.Intent.String(), a.Tier.String(), a.Host, a.Model, boolToInt(a.OK),
		a.ErrorType, a.Message, a.Latency.Milliseconds(), a.RulesVersion, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RecordAttempt implements router.AttemptRecorder.
func (j *Journal) RecordAttempt(ctx context.Context, rec router.AttemptRecord) error {
	a := Attempt{
		RequestID: rec.RequestID,
		AttemptNo: rec.AttemptNo,
		Intent:    rec.Intent,
		Tier:      rec.Outcome.Tier,
		Host:      rec.Outcome.Host,
		Model:     rec.Outcome.Model,
		OK:        rec.Outcome.OK,
		Message:   rec.Outcome.Message,
		Latency:   rec.Outcome.Latency,
		CreatedAt: rec.At,
	}
	if !rec.Outcome.OK {
		a.ErrorType = rec.Outcome.Kind.String()
	}
	return j.Record(ctx, a)
}

// Recent returns up to limit attempts, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, request_id, attempt_no, intent, tier, host, model, ok,
			error_type, message, latency_ms, rules_version, created_at
		FROM attempts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a               Attempt
			intent, tier    string
			ok              int
			latencyMs, atMs int64
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &a.AttemptNo, &intent, &tier, &a.Host, &a.Model, &ok,
			&a.ErrorType, &a.Message, &latencyMs, &a.RulesVersion, &atMs); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Intent = parseIntent(intent)
		a.Tier = parseTier(tier)
		a.OK = ok != 0
		a.Latency = time.Duration(latencyMs) * time.Millisecond
		a.CreatedAt = time.UnixMilli(atMs)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats aggregates all attempts per tier.
func (j *Journal) Stats(ctx context.Context) (map[router.Tier]TierStats, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT tier, COUNT(*), SUM(ok), AVG(latency_ms),
			MAX(CASE WHEN ok = 0 THEN created_at END)
		FROM attempts
		GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[router.Tier]TierStats)
	for rows.Next() {
		var (
			tier        string
			s           TierStats
			avgLatency  float64
			lastFailure sql.NullInt64
		)
		if err := rows.Scan(&tier, &s.Attempts, &s.Successes, &avgLatency, &lastFailure); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		s.Tier = parseTier(tier)
		s.AvgLatency = time.Duration(avgLatency * float64(time.Millisecond))
		if lastFailure.Valid {
			s.LastFailure = time.UnixMilli(lastFailure.Int64)
		}
		stats[s.Tier] = s
	}
	return stats, rows.Err()
}

// Prune deletes attempts older than cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if j.closed.Load() {
		return 0, ErrClosed
	}
	res, err := j.db.ExecContext(ctx, "DELETE FROM attempts WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.WithFields(log.Fields{"removed": n, "path": j.path}).Debug("Pruned journal")
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTier(s string) router.Tier {
	t, err := router.ParseTier(s)
	if err != nil {
		return router.TierNone
	}
	return t
}

func parseIntent(s string) router.Intent {
	i, err := router.ParseIntent(s)
	if err != nil {
		return router.IntentDefault
	}
	return i
}
