//go:build integration

package s3

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/duckmesh/dbbrowser/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("DBBROWSER_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("DBBROWSER_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("DBBROWSER_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("DBBROWSER_TEST_S3_BUCKET", "dbbrowser-it"),
		AccessKeyID:      envOr("DBBROWSER_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("DBBROWSER_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	key := "shop/users/roundtrip.parquet"
	payload := []byte("dbbrowser-integration")
	info, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "integration-tests/"+key {
		t.Fatalf("Put().Key = %q", info.Key)
	}

	stat, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d, want %d", stat.Size, len(payload))
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
