package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// PresenceRepository stores heartbeats in a Redis sorted set scored by the
// last-seen unix time and fans them out over Pub/Sub.
type PresenceRepository struct {
	rdb *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository.
func NewPresenceRepository(rdb *redis.Client) *PresenceRepository {
	return &PresenceRepository{rdb: rdb}
}

// SendHeartbeat records the pulse and publishes it in one round trip.
func (r *PresenceRepository) SendHeartbeat(ctx context.Context, hb model.Heartbeat) error {
	if hb.At.IsZero() {
		hb.At = time.Now()
	}
	payload, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.ZAdd(ctx, config.CacheKey.PresenceSetKey(), redis.Z{
		Score:  float64(hb.At.Unix()),
		Member: config.CacheKey.PresenceMember(hb.StudentName, hb.ClassName),
	})
	pipe.Publish(ctx, config.CacheKey.PresenceChannel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// ListOnline returns students whose last heartbeat is at or after since,
// most recent first.
func (r *PresenceRepository) ListOnline(ctx context.Context, since time.Time) ([]model.OnlineStudent, error) {
	zs, err := r.rdb.ZRevRangeByScoreWithScores(ctx, config.CacheKey.PresenceSetKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}

	online := make([]model.OnlineStudent, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		name, class := splitMember(member)
		online = append(online, model.OnlineStudent{
			StudentName: name,
			ClassName:   class,
			LastSeen:    time.Unix(int64(z.Score), 0).UTC(),
		})
	}
	return online, nil
}

// Prune removes members last seen strictly before cutoff.
func (r *PresenceRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.rdb.ZRemRangeByScore(ctx, config.CacheKey.PresenceSetKey(),
		"-inf", "("+strconv.FormatInt(cutoff.Unix(), 10)).Result()
}

// TryLock takes the sweep lock for ttl. It reports false if another
// instance holds it.
func (r *PresenceRepository) TryLock(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, config.CacheKey.PresenceSweepLockKey(), owner, ttl).Result()
}

// Subscribe listens on the presence channel. The caller closes the PubSub.
func (r *PresenceRepository) Subscribe(ctx context.Context) *redis.PubSub {
	return r.rdb.Subscribe(ctx, config.CacheKey.PresenceChannel())
}

// splitMember undoes config.CacheKey.PresenceMember. The class never contains
// the separator, so the last one splits.
func splitMember(member string) (name, class string) {
	i := strings.LastIndex(member, "|")
	if i < 0 {
		return member, ""
	}
	return member[:i], member[i+1:]
}
