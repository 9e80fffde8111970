// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"context"
	"time"
)

// Backoff produces exponential waits: the n-th call to Next (1-indexed)
// returns base * 2^(n-1). State is scoped to a single request or transfer;
// create a fresh Backoff per operation.
type Backoff struct {
	base    time.Duration
	attempt int
}

// NewBackoff creates a Backoff with the given base delay.
func NewBackoff(base time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	return &Backoff{base: base}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return b.base * (1 << (b.attempt - 1))
}

// SleepCtx waits for d or returns false if ctx is canceled first.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
