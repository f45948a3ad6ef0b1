// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropicFromResponseBody(t *testing.T) {
	body := []byte(`{"id":"msg_1","usage":{"input_tokens":30,"output_tokens":12,"cache_read_input_tokens":4}}`)
	u, err := Anthropic().FromResponseBody(body)
	require.NoError(t, err)
	require.EqualValues(t, 34, u.PromptTokens)
	require.EqualValues(t, 12, u.CompletionTokens)
	require.EqualValues(t, 46, u.TotalTokens)
}

func TestAnthropicStreamStateMergesStartAndDelta(t *testing.T) {
	st := Anthropic().NewStreamState()

	u, done := st.Feed([]byte("event: message_start\ndata: {\"message\":{\"usage\":{\"input_tokens\":50,\"output_tokens\":1}}}\n\n"))
	require.NotNil(t, u)
	require.False(t, done)
	require.EqualValues(t, 50, u.PromptTokens)
	require.EqualValues(t, 1, u.CompletionTokens)

	u, done = st.Feed([]byte("event: content_block_delta\ndata: {\"delta\":{\"text\":\"hi\"}}\n\n"))
	require.Nil(t, u)
	require.False(t, done)

	u, done = st.Feed([]byte("event: message_delta\ndata: {\"usage\":{\"output_tokens\":25}}\n\n"))
	require.NotNil(t, u)
	require.False(t, done)
	require.EqualValues(t, 50, u.PromptTokens)
	require.EqualValues(t, 25, u.CompletionTokens)

	_, done = st.Feed([]byte("event: message_stop\ndata: {}\n\n"))
	require.True(t, done)
	require.EqualValues(t, 75, st.Final().TotalTokens)
}
