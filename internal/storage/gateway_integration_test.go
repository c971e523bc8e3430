// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

//go:build integration

package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/testinfra"
)

func TestGatewayAgainstMinIO(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	minio, err := testinfra.NewMinIOContainer(ctx)
	if err != nil {
		t.Fatalf("starting minio: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, minio.Container)

	gateway, err := New(&config.StorageConfig{
		Enabled:        true,
		Endpoint:       minio.Endpoint,
		AccessKey:      minio.AccessKey,
		SecretKey:      minio.SecretKey,
		ReportBucket:   "bgapp-reports",
		RequestTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("creating gateway: %v", err)
	}

	if err := gateway.EnsureBucket(ctx, "bgapp-reports"); err != nil {
		t.Fatalf("ensuring bucket: %v", err)
	}
	exists, err := gateway.BucketExists(ctx, "bgapp-reports")
	if err != nil || !exists {
		t.Fatalf("bucket should exist after EnsureBucket (exists=%v err=%v)", exists, err)
	}

	body := `{"report":"weekly","area_km2":518433}`
	err = gateway.PutObject(ctx, "bgapp-reports", "reports/weekly.json", "application/json",
		strings.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("putting object: %v", err)
	}

	buckets, fallback := gateway.ListBuckets(ctx)
	if fallback {
		t.Fatal("listing should not fall back with a live backend")
	}
	found := false
	for _, b := range buckets {
		if b.Name == "bgapp-reports" {
			found = true
		}
	}
	if !found {
		t.Errorf("bgapp-reports missing from listing: %+v", buckets)
	}

	if state := gateway.BreakerState(); state != "closed" {
		t.Errorf("breaker state = %s, want closed after successful calls", state)
	}
}
