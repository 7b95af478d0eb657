package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultDispatchCacheTTL bounds staleness if an invalidation is missed.
const DefaultDispatchCacheTTL = 30 * time.Second

const dispatchCachePrefix = "cache:dispatch:"

// setIfNewerScript replaces the cached dispatch unless the cached copy has a
// higher version. KEYS[1] key, ARGV[1] payload, ARGV[2] version, ARGV[3] ttl ms.
var setIfNewerScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local ok, obj = pcall(cjson.decode, cur)
	if ok and type(obj) == "table" and tonumber(obj.version) and tonumber(obj.version) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// NewCacheStore creates a new CacheStore. A non-positive ttl uses
// DefaultDispatchCacheTTL.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultDispatchCacheTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// CachedDispatch represents a cached dispatch entity.
type CachedDispatch struct {
	ID               string    `json:"id"`
	BookingID        string    `json:"booking_id"`
	AssignedDriverID string    `json:"assigned_driver_id,omitempty"`
	Status           string    `json:"status"`
	DispatchTime     time.Time `json:"dispatch_time"`
	ArrivalTime      time.Time `json:"arrival_time"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Version orders writes; it is UpdatedAt in microseconds.
	Version int64 `json:"version"`
	// Deleted marks a tombstone left by InvalidateDispatch.
	Deleted bool `json:"deleted,omitempty"`
}

// GetDispatch retrieves a dispatch from cache. A miss or a tombstone returns
// nil, nil.
func (s *CacheStore) GetDispatch(ctx context.Context, dispatchID string) (*CachedDispatch, error) {
	data, err := s.client.Get(ctx, dispatchCachePrefix+dispatchID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var d CachedDispatch
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d.Deleted {
		return nil, nil
	}
	return &d, nil
}

// SetDispatch stores a committed dispatch unless the cache already holds a
// newer version of it.
func (s *CacheStore) SetDispatch(ctx context.Context, d *CachedDispatch) error {
	data, version, err := encodeCached(d)
	if err != nil {
		return err
	}
	return setIfNewerScript.Run(ctx, s.client,
		[]string{dispatchCachePrefix + d.ID},
		data, version, s.ttl.Milliseconds(),
	).Err()
}

// FillDispatch stores a dispatch only when nothing is cached under its key.
func (s *CacheStore) FillDispatch(ctx context.Context, d *CachedDispatch) error {
	data, _, err := encodeCached(d)
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, dispatchCachePrefix+d.ID, data, s.ttl).Err()
}

// InvalidateDispatch replaces a cached dispatch with a tombstone for one TTL,
// so a fill from a read that started before the delete cannot resurrect it.
func (s *CacheStore) InvalidateDispatch(ctx context.Context, dispatchID string) error {
	data, err := json.Marshal(CachedDispatch{ID: dispatchID, Deleted: true})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, dispatchCachePrefix+dispatchID, data, s.ttl).Err()
}

func encodeCached(d *CachedDispatch) ([]byte, int64, error) {
	cp := *d
	cp.Version = d.UpdatedAt.UnixMicro()
	data, err := json.Marshal(cp)
	return data, cp.Version, err
}
