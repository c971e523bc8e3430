// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/bgapp-platform/bgapp/internal/config"
)

type fakeStore struct {
	buckets   []minio.BucketInfo
	objects   map[string][]minio.ObjectInfo
	listErr   error
	existing  map[string]bool
	madeCalls []string
}

func (f *fakeStore) ListBuckets(_ context.Context) ([]minio.BucketInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.buckets, nil
}

func (f *fakeStore) ListObjects(_ context.Context, bucket string, _ minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects[bucket]))
	for _, obj := range f.objects[bucket] {
		ch <- obj
	}
	close(ch)
	return ch
}

func (f *fakeStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.existing[bucket], nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.madeCalls = append(f.madeCalls, bucket)
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, _ io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func testCfg() *config.StorageConfig {
	return &config.StorageConfig{
		Enabled:         true,
		Endpoint:        "minio:9000",
		Region:          "us-east-1",
		ObjectScanLimit: 3,
		RequestTimeout:  5 * time.Second,
	}
}

func TestListBucketsAggregates(t *testing.T) {
	store := &fakeStore{
		buckets: []minio.BucketInfo{
			{Name: "bgapp-reports", CreationDate: time.Now()},
			{Name: "bgapp-data", CreationDate: time.Now()},
		},
		objects: map[string][]minio.ObjectInfo{
			"bgapp-data": {{Size: 100}, {Size: 200}},
		},
	}
	g := NewWithStore(store, testCfg())

	buckets, fallback := g.ListBuckets(context.Background())
	if fallback {
		t.Fatal("healthy store should not serve fallback")
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets, want 2", len(buckets))
	}
	// Sorted by name.
	if buckets[0].Name != "bgapp-data" {
		t.Errorf("first bucket = %s, want bgapp-data", buckets[0].Name)
	}
	if buckets[0].Objects != 2 || buckets[0].SizeBytes != 300 {
		t.Errorf("aggregation wrong: %+v", buckets[0])
	}
}

func TestListBucketsScanCap(t *testing.T) {
	store := &fakeStore{
		buckets: []minio.BucketInfo{{Name: "big"}},
		objects: map[string][]minio.ObjectInfo{
			"big": {{Size: 1}, {Size: 1}, {Size: 1}, {Size: 1}, {Size: 1}},
		},
	}
	g := NewWithStore(store, testCfg())

	buckets, _ := g.ListBuckets(context.Background())
	if !buckets[0].SizeCapped {
		t.Error("scan past the limit should mark the size capped")
	}
	if buckets[0].Objects != 3 {
		t.Errorf("objects = %d, want scan limit 3", buckets[0].Objects)
	}
}

func TestListBucketsFallback(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused")}
	g := NewWithStore(store, testCfg())

	buckets, fallback := g.ListBuckets(context.Background())
	if !fallback {
		t.Fatal("failing store must serve fallback")
	}
	if len(buckets) != len(FallbackBuckets) {
		t.Fatalf("got %d fallback buckets, want %d", len(buckets), len(FallbackBuckets))
	}

	names := map[string]bool{}
	for _, b := range buckets {
		names[b.Name] = true
	}
	for _, want := range []string{"bgapp-data", "bgapp-models", "bgapp-reports"} {
		if !names[want] {
			t.Errorf("fallback set missing %s", want)
		}
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	store := &fakeStore{listErr: errors.New("down")}
	g := NewWithStore(store, testCfg())

	for i := 0; i < 4; i++ {
		g.ListBuckets(context.Background())
	}
	if g.BreakerState() != "open" {
		t.Errorf("breaker state = %s, want open after consecutive failures", g.BreakerState())
	}

	// Open breaker still serves fallback without touching the store.
	buckets, fallback := g.ListBuckets(context.Background())
	if !fallback || len(buckets) == 0 {
		t.Error("open breaker should serve fallback set")
	}
}

func TestEnsureBucket(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{"present": true}}
	g := NewWithStore(store, testCfg())

	if err := g.EnsureBucket(context.Background(), "present"); err != nil {
		t.Fatalf("existing bucket should be a no-op: %v", err)
	}
	if len(store.madeCalls) != 0 {
		t.Error("existing bucket should not be recreated")
	}

	if err := g.EnsureBucket(context.Background(), "absent"); err != nil {
		t.Fatalf("EnsureBucket failed: %v", err)
	}
	if len(store.madeCalls) != 1 || store.madeCalls[0] != "absent" {
		t.Errorf("MakeBucket calls = %v, want [absent]", store.madeCalls)
	}
}
