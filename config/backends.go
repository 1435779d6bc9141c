package config

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/blob/miniostore"
	"github.com/pbanos/grove/blob/redisstore"
	"github.com/pbanos/grove/queue"
	"github.com/pbanos/grove/queue/json"
	"github.com/pbanos/grove/queue/redisq"
	redis "gopkg.in/redis.v5"
)

func (rc RedisConfig) client() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
}

/*
OpenBlobStore returns the blob store the configuration describes,
wrapped to compress blobs unless compression is none. Minio buckets
are created if they do not exist.
*/
func OpenBlobStore(ctx context.Context, bc BlobConfig) (blob.Store, error) {
	compression, err := blob.ParseCompression(bc.Compression)
	if err != nil {
		return nil, err
	}
	var store blob.Store
	switch bc.Backend {
	case "memory":
		store = blob.NewMemoryStore()
	case "redis":
		rc := bc.Redis.client()
		if err := rc.Ping().Err(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", bc.Redis.Addr, err)
		}
		store = redisstore.New(rc, bc.Redis.Prefix)
	case "minio":
		client, err := minio.New(bc.Minio.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(bc.Minio.AccessKey, bc.Minio.SecretKey, ""),
			Secure: bc.Minio.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("creating minio client for %s: %w", bc.Minio.Endpoint, err)
		}
		exists, err := client.BucketExists(ctx, bc.Minio.Bucket)
		if err != nil {
			return nil, fmt.Errorf("checking minio bucket %s: %w", bc.Minio.Bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bc.Minio.Bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("creating minio bucket %s: %w", bc.Minio.Bucket, err)
			}
		}
		store = miniostore.New(client, bc.Minio.Bucket, bc.Minio.Prefix)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", bc.Backend)
	}
	if compression == blob.None {
		return store, nil
	}
	return blob.NewCompressed(store, compression)
}

// OpenQueue returns the task queue the configuration describes
func OpenQueue(qc QueueConfig) (queue.Queue, error) {
	switch qc.Backend {
	case "memory":
		return queue.New(), nil
	case "redis":
		rc := qc.Redis.client()
		if err := rc.Ping().Err(); err != nil {
			rc.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", qc.Redis.Addr, err)
		}
		return redisq.New(qc.ID, rc, qc.TaskMaxRun, qc.LockTTL, json.New()), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", qc.Backend)
}
