// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package locking

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Locker serializes work on a key. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// GraphKey is the lock key guarding writes to one graph
func GraphKey(graphID string) string {
	return "graph:" + graphID
}

// OwnerKey is the lock key guarding per-owner bootstrap work
func OwnerKey(ownerID string) string {
	return "owner:" + ownerID
}

// GraphLock is a lease row held by one lock holder until it expires
type GraphLock struct {
	Key       string    `gorm:"column:lock_key;primaryKey;size:191" json:"key"`
	Version   int64     `gorm:"not null;default:1" json:"version"`
	LockedBy  string    `gorm:"not null" json:"locked_by"`
	LockedAt  time.Time `gorm:"not null" json:"locked_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName specifies the table name for GraphLock
func (GraphLock) TableName() string {
	return "graph_locks"
}

// MigrateLocks runs migrations for the graph_locks table
func MigrateLocks(db *gorm.DB) error {
	return db.AutoMigrate(&GraphLock{})
}

// IsExpired returns true if the lease has expired
func (l *GraphLock) IsExpired() bool {
	return time.Now().After(l.ExpiresAt)
}

// ConflictError represents a version conflict during update
type ConflictError struct {
	ID              string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConflictError) Error() string {
	if e.ActualVersion < 0 {
		return fmt.Sprintf("version conflict on %s: expected %d", e.ID, e.ExpectedVersion)
	}
	return fmt.Sprintf("version conflict on %s: expected %d, got %d", e.ID, e.ExpectedVersion, e.ActualVersion)
}

// LockError represents a locking failure
type LockError struct {
	Key      string
	LockedBy string
	Message  string
}

func (e *LockError) Error() string {
	if e.LockedBy != "" {
		return fmt.Sprintf("%s: %s (held by %s)", e.Message, e.Key, e.LockedBy)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Key)
}
