// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

// Package testinfra provides Docker-backed test infrastructure for
// integration tests, built on testcontainers-go. It is only compiled
// with the integration build tag:
//
//	go test -tags integration ./...
//
// Tests that need a real MinIO instance start one via NewMinIOContainer
// and skip gracefully when Docker is unavailable.
package testinfra
