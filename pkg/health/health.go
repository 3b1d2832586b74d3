// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

// Package health tracks background job outcomes for operator
// visibility. Embedding backfill runs fire-and-forget, so the health
// endpoint is the only place a dropped vector becomes observable.
package health

import (
	"sync"
	"time"
)

// Metrics is a point-in-time snapshot of background embedding work,
// safe to serialize to JSON.
type Metrics struct {
	CompletedJobs int64      `json:"completed_jobs"`
	FailedJobs    int64      `json:"failed_jobs"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
}

// Tracker accumulates job outcomes. The zero value is ready to use and
// all methods are safe for concurrent callers.
type Tracker struct {
	mu            sync.Mutex
	completed     int64
	failed        int64
	lastFailureAt time.Time
}

// RecordSuccess counts one completed job.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
}

// RecordFailure counts one abandoned job.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.lastFailureAt = time.Now()
}

// Snapshot returns the current metrics.
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := Metrics{CompletedJobs: t.completed, FailedJobs: t.failed}
	if !t.lastFailureAt.IsZero() {
		at := t.lastFailureAt
		m.LastFailureAt = &at
	}
	return m
}
