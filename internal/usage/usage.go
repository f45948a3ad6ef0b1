// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package usage extracts token-count usage from non-streaming response
// bodies and streaming chunk frames, per provider wire format.
package usage

// Usage is a non-negative token-count triple. When all three fields are
// populated, TotalTokens should equal PromptTokens + CompletionTokens;
// Consistent reports whether that holds.
type Usage struct {
	PromptTokens     uint64
	CompletionTokens uint64
	TotalTokens      uint64
}

// Consistent reports whether, given all three fields present (non-zero
// total), the total equals the sum of the parts.
func (u Usage) Consistent() bool {
	if u.TotalTokens == 0 {
		return true
	}
	return u.TotalTokens == u.PromptTokens+u.CompletionTokens
}

// FoldToolContentTokens adds extra tokens (web_search_tokens,
// file_search_tokens, and similar tool-content counters some providers
// report) into PromptTokens and recomputes TotalTokens, treating
// tool-content tokens as prompt tokens. The extra fields themselves are
// never exposed on Usage.
func (u Usage) FoldToolContentTokens(extra uint64) Usage {
	u.PromptTokens += extra
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}

// Extractor is implemented once per upstream provider.
type Extractor interface {
	// FromResponseBody parses a complete, non-streaming JSON response
	// body and returns the Usage it reports, or nil if none is present.
	FromResponseBody(jsonBody []byte) (*Usage, error)

	// NewStreamState returns a fresh per-stream parsing state. Usage
	// extraction from a stream is stateful (SSE frames and Anthropic
	// events both span multiple chunks), so each streaming request gets
	// its own StreamState; it must not be shared across requests.
	NewStreamState() StreamState
}

// StreamState is the streaming state machine for one in-flight request.
// It buffers partial frames across chunk boundaries and reports the
// latest complete Usage it has parsed so far.
type StreamState interface {
	// Feed consumes one more chunk of raw upstream bytes. usage is
	// non-nil whenever this chunk (possibly combined with buffered
	// bytes from previous chunks) completed a usage-bearing frame;
	// later calls' usage overwrites earlier ones, since streaming
	// providers typically emit only final counts on the last frame.
	// done reports whether this chunk contained the provider's
	// termination signal (e.g. SSE "data: [DONE]").
	Feed(chunk []byte) (usage *Usage, done bool)

	// Final returns the last usage observed across all Feed calls, or
	// nil if none was ever extracted (not an error: not every provider
	// reports usage on every stream).
	Final() *Usage
}
