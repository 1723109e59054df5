package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"perfstore/internal/core"
	"perfstore/internal/hdr"
)

// RedisConfig holds the server address and entry lifetime.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis caches documents in a Redis server. The keys of each run are
// tracked in a set so that a run can be invalidated at once.
type Redis struct {
	rdb   *redis.Client
	ttl   time.Duration
	codec Codec
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, ewrap.Wrapf(err, "ping redis at %s", cfg.Addr)
	}

	return &Redis{rdb: rdb, ttl: cfg.TTL, codec: MsgpackCodec{}}, nil
}

func (r *Redis) Get(ctx context.Context, key core.SummaryKey) (*hdr.HdrData, bool, error) {
	b, err := r.rdb.Get(ctx, Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, ewrap.Wrap(err, "failed to get item from redis")
	}

	data, err := r.codec.Unmarshal(b)
	if err != nil {
		return nil, false, err
	}

	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, key core.SummaryKey, data *hdr.HdrData) error {
	b, err := r.codec.Marshal(data)
	if err != nil {
		return err
	}

	k := Key(key)
	set := runSetKey(key.RunID)

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, k, b, r.ttl)
	pipe.SAdd(ctx, set, k)

	if r.ttl > 0 {
		pipe.Expire(ctx, set, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return ewrap.Wrap(err, "failed to execute redis pipeline")
	}

	return nil
}

func (r *Redis) InvalidateRun(ctx context.Context, runID int64) error {
	set := runSetKey(runID)

	keys, err := r.rdb.SMembers(ctx, set).Result()
	if err != nil {
		return ewrap.Wrap(err, "failed to get keys from redis")
	}

	pipe := r.rdb.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}

	pipe.Del(ctx, set)

	if _, err := pipe.Exec(ctx); err != nil {
		return ewrap.Wrap(err, "failed to execute redis pipeline")
	}

	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
