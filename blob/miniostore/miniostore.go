/*
Package miniostore provides a blob.Store backed by a MinIO or any
S3-compatible object storage bucket.
*/
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/pbanos/grove/blob"
)

// Store implements blob.Store on a bucket
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New returns a Store keeping blobs as objects on the given bucket,
// under the given prefix.
func New(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func notFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Get returns the contents of the object for the given key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("getting object %q: %w", s.key(key), blob.ErrNotFound)
		}
		return nil, fmt.Errorf("getting object %q: %v", s.key(key), err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("reading object %q: %w", s.key(key), blob.ErrNotFound)
		}
		return nil, fmt.Errorf("reading object %q: %v", s.key(key), err)
	}
	return data, nil
}

// Put writes the object for the given key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("putting object %q: %v", s.key(key), err)
	}
	return nil
}

// Delete removes the object for the given key
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{})
	if err != nil && !notFound(err) {
		return fmt.Errorf("removing object %q: %v", s.key(key), err)
	}
	return nil
}

// Close does nothing, the minio client holds no resources to free
func (s *Store) Close(ctx context.Context) error {
	return nil
}
