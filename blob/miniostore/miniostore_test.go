package miniostore

import (
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pbanos/grove/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore requires a running MinIO instance, whose endpoint is
// taken from the GROVE_TEST_MINIO environment variable.
func TestStore(t *testing.T) {
	endpoint := os.Getenv("GROVE_TEST_MINIO")
	if endpoint == "" {
		t.Skip("GROVE_TEST_MINIO not set")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}
	ctx := context.Background()
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	bucket := "grove-test"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	var s blob.Store = New(client, bucket, "forests")
	require.NoError(t, s.Put(ctx, "tree:0", []byte("bits")))
	data, err := s.Get(ctx, "tree:0")
	require.NoError(t, err)
	assert.Equal(t, []byte("bits"), data)

	require.NoError(t, s.Delete(ctx, "tree:0"))
	_, err = s.Get(ctx, "tree:0")
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "tree:0"))
}
