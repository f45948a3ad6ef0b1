// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitHookAllowsBurstThenRejects(t *testing.T) {
	h := NewRateLimitHook(60) // 1/sec, burst 60
	fixedNow := time.Now()
	h.nowFunc = func() time.Time { return fixedNow }

	meta := Meta{CallerDID: "did:example:a"}
	for i := 0; i < 60; i++ {
		require.NoError(t, h.Authorize(context.Background(), meta), "request %d", i)
	}
	require.Error(t, h.Authorize(context.Background(), meta))
}

func TestRateLimitHookRefillsOverTime(t *testing.T) {
	h := NewRateLimitHook(60)
	fixedNow := time.Now()
	h.nowFunc = func() time.Time { return fixedNow }

	meta := Meta{CallerDID: "did:example:b"}
	for i := 0; i < 60; i++ {
		require.NoError(t, h.Authorize(context.Background(), meta))
	}
	require.Error(t, h.Authorize(context.Background(), meta))

	fixedNow = fixedNow.Add(2 * time.Second)
	require.NoError(t, h.Authorize(context.Background(), meta))
}

func TestRateLimitHookPerCallerIsolation(t *testing.T) {
	h := NewRateLimitHook(1)
	fixedNow := time.Now()
	h.nowFunc = func() time.Time { return fixedNow }

	require.NoError(t, h.Authorize(context.Background(), Meta{CallerDID: "did:example:a"}))
	require.NoError(t, h.Authorize(context.Background(), Meta{CallerDID: "did:example:b"}))
}
