// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIFromResponseBody(t *testing.T) {
	body := []byte(`{"id":"chatcmpl-1","usage":{"prompt_tokens":12,"completion_tokens":8,"total_tokens":20}}`)
	u, err := OpenAI().FromResponseBody(body)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.EqualValues(t, 12, u.PromptTokens)
	require.EqualValues(t, 8, u.CompletionTokens)
	require.EqualValues(t, 20, u.TotalTokens)
}

func TestOpenAIFromResponseBodyNoUsage(t *testing.T) {
	u, err := OpenAI().FromResponseBody([]byte(`{"id":"chatcmpl-1"}`))
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestOpenAIToolContentFolding(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":100,"completion_tokens":10,"total_tokens":110,"prompt_tokens_details":{"web_search_tokens":5,"file_search_tokens":3}}}`)
	u, err := OpenAI().FromResponseBody(body)
	require.NoError(t, err)
	require.EqualValues(t, 108, u.PromptTokens)
	require.EqualValues(t, 10, u.CompletionTokens)
	require.EqualValues(t, 118, u.TotalTokens)
}

func TestOpenAIStreamStateAcrossChunks(t *testing.T) {
	st := OpenAI().NewStreamState()

	u, done := st.Feed([]byte("data: {\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
	require.Nil(t, u)
	require.False(t, done)

	u, done = st.Feed([]byte("data: {\"id\":\"1\",\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\ndata: [DONE]\n\n"))
	require.NotNil(t, u)
	require.True(t, done)
	require.EqualValues(t, 5, u.PromptTokens)
	require.EqualValues(t, 7, st.Final().TotalTokens)
}

func TestOpenAIStreamStateSplitAcrossFeedCalls(t *testing.T) {
	st := OpenAI().NewStreamState()

	u, done := st.Feed([]byte("data: {\"usage\":{\"prompt_tokens\":1,\"completion"))
	require.Nil(t, u)
	require.False(t, done)

	u, done = st.Feed([]byte("_tokens\":2,\"total_tokens\":3}}\n\n"))
	require.NotNil(t, u)
	require.False(t, done)
	require.EqualValues(t, 3, u.TotalTokens)
}
