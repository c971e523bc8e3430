// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package storage provides the MinIO object-storage gateway behind a
// circuit breaker. When MinIO is unreachable the gateway serves the
// static fallback bucket set so the storage dashboard keeps rendering,
// flagged as fallback data.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/logging"
	"github.com/bgapp-platform/bgapp/internal/metrics"
	"github.com/bgapp-platform/bgapp/internal/models"
)

// ObjectStore is the slice of the MinIO client the gateway needs.
// *minio.Client satisfies it; tests substitute a fake.
type ObjectStore interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Gateway wraps the object store with breaker protection and fallbacks.
type Gateway struct {
	store   ObjectStore
	cfg     *config.StorageConfig
	breaker *gobreaker.CircuitBreaker[[]models.BucketInfo]
}

// FallbackBuckets is the static bucket set served when MinIO is
// unavailable. CreatedAt stays zero so clients can tell these apart from
// live listings even without the metadata flag.
var FallbackBuckets = []models.BucketInfo{
	{Name: "bgapp-data"},
	{Name: "bgapp-models"},
	{Name: "bgapp-reports"},
}

// New connects to MinIO and builds the gateway.
func New(cfg *config.StorageConfig) (*Gateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return NewWithStore(client, cfg), nil
}

// NewWithStore builds a gateway over an existing store. Used by New and
// by tests.
func NewWithStore(store ObjectStore, cfg *config.StorageConfig) *Gateway {
	settings := gobreaker.Settings{
		Name:        "minio",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, to.String())
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Storage circuit breaker state change")
		},
	}

	return &Gateway{
		store:   store,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[[]models.BucketInfo](settings),
	}
}

// ListBuckets returns bucket metadata with per-bucket object counts and
// aggregated sizes. The second return value reports whether the response
// is the static fallback set.
func (g *Gateway) ListBuckets(ctx context.Context) ([]models.BucketInfo, bool) {
	buckets, err := g.breaker.Execute(func() ([]models.BucketInfo, error) {
		return g.listBuckets(ctx)
	})
	if err != nil {
		logging.Warn().Err(err).Msg("MinIO unavailable, serving fallback bucket list")
		return FallbackBuckets, true
	}
	return buckets, false
}

func (g *Gateway) listBuckets(ctx context.Context) ([]models.BucketInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	raw, err := g.store.ListBuckets(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	out := make([]models.BucketInfo, 0, len(raw))
	for _, b := range raw {
		info := models.BucketInfo{
			Name:      b.Name,
			CreatedAt: b.CreationDate,
		}
		g.aggregateBucket(reqCtx, &info)
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// aggregateBucket counts objects and sums sizes up to the configured scan
// limit. Past the limit the size is reported as capped rather than paying
// for a full scan of a large bucket.
func (g *Gateway) aggregateBucket(ctx context.Context, info *models.BucketInfo) {
	limit := g.cfg.ObjectScanLimit
	if limit == 0 {
		return
	}

	for obj := range g.store.ListObjects(ctx, info.Name, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			logging.Debug().Err(obj.Err).Str("bucket", info.Name).Msg("Object listing truncated")
			return
		}
		info.Objects++
		info.SizeBytes += obj.Size
		if info.Objects >= int64(limit) {
			info.SizeCapped = true
			return
		}
	}
}

// BucketExists reports whether the bucket exists.
func (g *Gateway) BucketExists(ctx context.Context, name string) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	return g.store.BucketExists(reqCtx, name)
}

// EnsureBucket creates the bucket if it does not exist.
func (g *Gateway) EnsureBucket(ctx context.Context, name string) error {
	exists, err := g.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", name, err)
	}
	if exists {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	if err := g.store.MakeBucket(reqCtx, name, minio.MakeBucketOptions{Region: g.cfg.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}

	logging.Info().Str("bucket", name).Msg("Bucket created")
	return nil
}

// PutObject writes one object, creating the bucket on first use.
func (g *Gateway) PutObject(ctx context.Context, bucket, object, contentType string, reader io.Reader, size int64) error {
	if err := g.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()
	_, err := g.store.PutObject(reqCtx, bucket, object, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, object, err)
	}
	return nil
}

// BreakerState returns the breaker state string for health reporting.
func (g *Gateway) BreakerState() string {
	return g.breaker.State().String()
}
