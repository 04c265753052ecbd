package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"printbroker/internal/domain"
	"printbroker/internal/infra/logging"
)

const opTimeout = 1 * time.Second

// Feed caches a user's request list in Redis.
//
// Lists live under feed:user:<id>:<version>. Invalidate bumps feed:ver:<id>,
// so a list loaded before the bump lands under a key no reader asks for.
type Feed struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFeed(rdb *redis.Client, ttl time.Duration) *Feed {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Feed{rdb: rdb, ttl: ttl}
}

func versionKey(userID int64) string {
	return "feed:ver:" + strconv.FormatInt(userID, 10)
}

func feedKey(userID, version int64) string {
	return "feed:user:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(version, 10)
}

// version returns the user's current feed version, or -1 when Redis fails.
func (f *Feed) version(ctx context.Context, userID int64) int64 {
	v, err := f.rdb.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return -1
	}
	return v
}

// Get returns the cached list. On a miss it returns the version to hand to Set.
// Redis errors count as a miss.
func (f *Feed) Get(ctx context.Context, userID int64) ([]domain.PrintRequest, int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	v := f.version(ctx, userID)
	if v < 0 {
		return nil, v, false
	}
	key := feedKey(userID, v)
	data, err := f.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, v, false
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, -1, false
	}
	var list []domain.PrintRequest
	if err := json.Unmarshal(data, &list); err != nil {
		logging.Warn("Dropping unreadable feed cache entry", "user_id", userID, "error", err)
		if err := f.rdb.Del(ctx, key).Err(); err != nil {
			logging.Warn("Redis delete failed", "user_id", userID, "error", err)
		}
		return nil, v, false
	}
	return list, v, true
}

// Set stores list under version for the configured TTL. Negative versions are ignored.
func (f *Feed) Set(ctx context.Context, userID, version int64, list []domain.PrintRequest) {
	if version < 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(list)
	if err != nil {
		logging.Warn("Feed cache encode failed", "user_id", userID, "error", err)
		return
	}
	if err := f.rdb.Set(ctx, feedKey(userID, version), data, f.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}

// Invalidate moves the user to a new version and drops the list cached under the old one.
func (f *Feed) Invalidate(ctx context.Context, userID int64) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	v, err := f.rdb.Incr(ctx, versionKey(userID)).Result()
	if err != nil {
		logging.Warn("Redis write failed", "user_id", userID, "error", err)
		return
	}
	if err := f.rdb.Del(ctx, feedKey(userID, v-1)).Err(); err != nil {
		logging.Warn("Redis delete failed", "user_id", userID, "error", err)
	}
}
