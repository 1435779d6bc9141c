/*
Package redisstore provides a blob.Store backed by a redis DB.
*/
package redisstore

import (
	"context"
	"fmt"

	"github.com/pbanos/grove/blob"
	"gopkg.in/redis.v5"
)

type redisStore struct {
	rc     *redis.Client
	prefix string
}

// New builds a blob.Store backed by a redis DB. Blobs are kept as
// strings on keys formed by the given prefix, a colon and the blob key.
func New(rc *redis.Client, prefix string) blob.Store {
	return &redisStore{rc, prefix}
}

func (rs *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	redisKey := rs.keyFor(key)
	data, err := rs.rc.Get(redisKey).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("retrieving blob %q from redis: %w", redisKey, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving blob %q from redis: %v", redisKey, err)
	}
	return data, nil
}

func (rs *redisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	redisKey := rs.keyFor(key)
	_, err := rs.rc.Set(redisKey, data, 0).Result()
	if err != nil {
		return fmt.Errorf("storing blob %q in redis: %v", redisKey, err)
	}
	return nil
}

func (rs *redisStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	redisKey := rs.keyFor(key)
	_, err := rs.rc.Del(redisKey).Result()
	if err != nil {
		return fmt.Errorf("deleting blob %q from redis: %v", redisKey, err)
	}
	return nil
}

func (rs *redisStore) Close(ctx context.Context) error {
	return rs.rc.Close()
}

func (rs *redisStore) keyFor(key string) string {
	return fmt.Sprintf("%s:%s", rs.prefix, key)
}
