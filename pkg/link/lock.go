// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Lock serializes access to one serial channel. Foreground pollers use a
// bounded TryAcquire; background tasks use Acquire.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock creates an unlocked Lock
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire waits until the lock is held or ctx is done
func (l *Lock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire waits at most wait for the lock
func (l *Lock) TryAcquire(wait time.Duration) bool {
	if l.sem.TryAcquire(1) {
		return true
	}
	if wait <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return l.sem.Acquire(ctx, 1) == nil
}

// Release unlocks. It must only be called by the holder.
func (l *Lock) Release() {
	l.sem.Release(1)
}
