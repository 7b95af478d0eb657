package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	// AcquireDriverLock returns the owner token of a newly taken lock, or an
	// empty token when the lock is already held.
	AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (string, error)
	// ReleaseDriverLock frees the lock only while it still carries token.
	ReleaseDriverLock(ctx context.Context, driverID, token string) error
}

// DispatchCacheInterface defines the interface for dispatch read caching.
type DispatchCacheInterface interface {
	GetDispatch(ctx context.Context, dispatchID string) (*CachedDispatch, error)
	// SetDispatch writes a committed dispatch unless a newer version is cached.
	SetDispatch(ctx context.Context, dispatch *CachedDispatch) error
	// FillDispatch stores a dispatch read from the database only if the key
	// is empty, so a read that raced a write never replaces the writer's copy.
	FillDispatch(ctx context.Context, dispatch *CachedDispatch) error
	// InvalidateDispatch marks a deleted dispatch as gone until the TTL ends.
	InvalidateDispatch(ctx context.Context, dispatchID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface     = (*LockStore)(nil)
	_ DispatchCacheInterface = (*CacheStore)(nil)
)
