// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

func TestTransformerCopiesBytesAndExtractsUsage(t *testing.T) {
	src := strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: {\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n" +
		"data: [DONE]\n\n")
	var dst bytes.Buffer

	var result Result
	tr := New(&dst, src, usage.OpenAI(), nil, func(r Result) { result = r })

	require.Equal(t, StateInitial, tr.State())
	err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateFinalized, tr.State())

	require.Equal(t, src.Size(), int64(dst.Len()))
	require.NotNil(t, result.Usage)
	require.EqualValues(t, 5, result.Usage.TotalTokens)
	require.NoError(t, result.UpstreamErr)
}

func TestTransformerNilExtractorNeverPanics(t *testing.T) {
	src := strings.NewReader("arbitrary bytes\n")
	var dst bytes.Buffer

	tr := New(&dst, src, nil, nil, nil)
	err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "arbitrary bytes\n", dst.String())
}

func TestTransformerContextCancellation(t *testing.T) {
	src := strings.NewReader(strings.Repeat("x", 1<<20))
	var dst bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(&dst, src, nil, nil, nil)
	err := tr.Run(ctx)
	require.Error(t, err)
	require.Equal(t, StateFinalized, tr.State())
}
