package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRedisKeyPrefix  = "hipotlink:frames"
	DefaultRedisMaxEntries = 500
	redisWriteTimeout      = 500 * time.Millisecond
)

// ListStore is the part of a redis client the recorder uses.
type ListStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// Redis keeps the newest records of each channel in a capped list,
// newest first, under <prefix>:<channel>.
type Redis struct {
	store      ListStore
	prefix     string
	maxEntries int64
}

func NewRedis(store ListStore, prefix string, maxEntries int64) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if maxEntries <= 0 {
		maxEntries = DefaultRedisMaxEntries
	}
	return &Redis{store: store, prefix: prefix, maxEntries: maxEntries}
}

// DialRedis connects to addr and verifies it answers.
func DialRedis(ctx context.Context, addr, prefix string, maxEntries int64) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("recorder: redis ping %s: %w", addr, err)
	}
	return NewRedis(client, prefix, maxEntries), client, nil
}

func (r *Redis) Key(channel string) string {
	return r.prefix + ":" + SubjectToken(channel)
}

func (r *Redis) Record(rec FrameRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Msg("recorder.Redis.Record marshal failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	key := r.Key(rec.Channel)
	if err := r.store.LPush(ctx, key, data).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("recorder.Redis.Record push failed")
		return
	}
	if err := r.store.LTrim(ctx, key, 0, r.maxEntries-1).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("recorder.Redis.Record trim failed")
	}
}
