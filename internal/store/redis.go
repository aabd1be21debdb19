package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis backs the store with a single redis instance. SETNX is the
// conditional put; SCAN drives prefix discovery. Multi-key atomicity is
// not offered, so the registry falls back to its compensation protocol.
type Redis struct {
	client *goredis.Client
}

func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Record, error) {
	doc, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Record{}, ErrKeyNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get %q: %w", key, err)
	}
	return Record{Key: key, Doc: doc}, nil
}

func (r *Redis) PutIfAbsent(ctx context.Context, key string, doc []byte) error {
	ok, err := r.client.SetNX(ctx, key, doc, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %q: %w", key, err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (r *Redis) ScanPrefix(ctx context.Context, prefix string) ([]Record, error) {
	var out []Record

	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		doc, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			// Deleted between SCAN and GET; skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %q: %w", key, err)
		}
		out = append(out, Record{Key: key, Doc: doc})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
