// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultLockTTL is the default time-to-live for leases
const DefaultLockTTL = 5 * time.Minute

// MaxRetries is the default number of retries for optimistic locking
const MaxRetries = 3

// RetryDelay is the delay between retries
const RetryDelay = 100 * time.Millisecond

// maxPollDelay caps the wait between lease acquisition attempts
const maxPollDelay = 2 * time.Second

// LeaseLocker is a database-backed Locker shared by every process using the same database
type LeaseLocker struct {
	db         *gorm.DB
	lockTTL    time.Duration
	retryDelay time.Duration
}

// NewLeaseLocker creates a new lease locker
func NewLeaseLocker(db *gorm.DB) *LeaseLocker {
	return &LeaseLocker{
		db:         db,
		lockTTL:    DefaultLockTTL,
		retryDelay: RetryDelay,
	}
}

// WithTTL sets a custom TTL for leases
func (l *LeaseLocker) WithTTL(ttl time.Duration) *LeaseLocker {
	l.lockTTL = ttl
	return l
}

// WithRetryDelay sets the initial wait between acquisition attempts
func (l *LeaseLocker) WithRetryDelay(delay time.Duration) *LeaseLocker {
	l.retryDelay = delay
	return l
}

// Acquire attempts to take the lease for key.
// Returns true if acquired, false if another holder owns an unexpired lease.
func (l *LeaseLocker) Acquire(ctx context.Context, key, holder string) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(l.lockTTL)

	lock := GraphLock{
		Key:       key,
		Version:   1,
		LockedBy:  holder,
		LockedAt:  now,
		ExpiresAt: expiresAt,
	}

	result := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert lease: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// Row exists: take it over if expired or already ours
	result = l.db.WithContext(ctx).Model(&GraphLock{}).
		Where("lock_key = ? AND (expires_at < ? OR locked_by = ?)", key, now, holder).
		Updates(map[string]interface{}{
			"locked_by":  holder,
			"locked_at":  now,
			"expires_at": expiresAt,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to take over lease: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Lock blocks until the lease for key is acquired or ctx is done.
// The lease is extended in the background until unlock is called.
func (l *LeaseLocker) Lock(ctx context.Context, key string) (func(), error) {
	holder := uuid.NewString()
	delay := l.retryDelay

	for {
		acquired, err := l.Acquire(ctx, key, holder)
		if err != nil {
			return nil, err
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, &LockError{Key: key, Message: "timed out waiting for lock: " + ctx.Err().Error()}
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxPollDelay {
			delay = maxPollDelay
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, holder, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.Release(context.Background(), key, holder) //nolint:errcheck
		})
	}, nil
}

// keepAlive extends the lease at half its TTL until stop is closed
func (l *LeaseLocker) keepAlive(key, holder string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.lockTTL / 2
	if interval <= 0 {
		<-stop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.Extend(context.Background(), key, holder); err != nil {
				return
			}
		}
	}
}

// Release releases a lease held by the specified holder
func (l *LeaseLocker) Release(ctx context.Context, key, holder string) error {
	return l.db.WithContext(ctx).
		Where("lock_key = ? AND locked_by = ?", key, holder).
		Delete(&GraphLock{}).Error
}

// Extend extends the TTL of an existing lease
func (l *LeaseLocker) Extend(ctx context.Context, key, holder string) error {
	result := l.db.WithContext(ctx).Model(&GraphLock{}).
		Where("lock_key = ? AND locked_by = ?", key, holder).
		Update("expires_at", time.Now().Add(l.lockTTL))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &LockError{
			Key:      key,
			LockedBy: holder,
			Message:  "lease not found or owned by different holder",
		}
	}
	return nil
}

// CleanupExpired removes all expired leases
func (l *LeaseLocker) CleanupExpired(ctx context.Context) (int64, error) {
	result := l.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&GraphLock{})
	return result.RowsAffected, result.Error
}

// UpdateWithVersion performs an optimistic locking update on a row keyed by id.
// Returns ConflictError if the version moved, gorm.ErrRecordNotFound if the row is gone.
func UpdateWithVersion(db *gorm.DB, table string, id string, currentVersion int64, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")

	result := db.Table(table).
		Where("id = ? AND version = ?", id, currentVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var actual int64
		err := db.Table(table).Select("version").Where("id = ?", id).Row().Scan(&actual)
		if err == nil {
			return &ConflictError{
				ID:              id,
				ExpectedVersion: currentVersion,
				ActualVersion:   actual,
			}
		}
		return gorm.ErrRecordNotFound
	}

	return nil
}

// RetryWithBackoff retries fn with exponential backoff, only on *ConflictError
func RetryWithBackoff(maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
