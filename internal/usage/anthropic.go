// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"bytes"

	"github.com/tidwall/gjson"
)

var anthropicEventPrefix = []byte("event:")

// anthropicExtractor parses Anthropic's Messages API wire format.
// Non-streaming responses carry a single top-level "usage" object with
// separate input/output token fields. Streaming responses are a named
// SSE event sequence: usage first appears on message_start (input_tokens
// plus a provisional output_tokens), and output_tokens is updated on
// message_delta; this extractor
// keeps the latest of each and merges them, since message_delta alone
// omits input_tokens.
type anthropicExtractor struct{}

// Anthropic returns the Extractor for the Anthropic Messages API.
func Anthropic() Extractor { return anthropicExtractor{} }

func (anthropicExtractor) FromResponseBody(body []byte) (*Usage, error) {
	return parseAnthropicUsageObject(body), nil
}

func (anthropicExtractor) NewStreamState() StreamState {
	return &anthropicStreamState{}
}

func parseAnthropicUsageObject(obj []byte) *Usage {
	u := gjson.GetBytes(obj, "usage")
	if !u.Exists() {
		return nil
	}
	usage := Usage{
		PromptTokens:     uint64(u.Get("input_tokens").Int()),
		CompletionTokens: uint64(u.Get("output_tokens").Int()),
	}
	if st := u.Get("cache_creation_input_tokens"); st.Exists() {
		usage.PromptTokens += uint64(st.Int())
	}
	if st := u.Get("cache_read_input_tokens"); st.Exists() {
		usage.PromptTokens += uint64(st.Int())
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return &usage
}

// anthropicStreamState tracks the event name of the current SSE frame
// (Anthropic pairs an "event: <name>" line with a following "data: "
// line) and merges input_tokens captured at message_start with
// output_tokens refined at message_delta.
type anthropicStreamState struct {
	buf          bytes.Buffer
	currentEvent string
	prompt       uint64
	completion   uint64
	final        *Usage
}

func (s *anthropicStreamState) Feed(chunk []byte) (*Usage, bool) {
	s.buf.Write(chunk)
	done := false
	updated := false

	for {
		buf := s.buf.Bytes()
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(buf[:idx], "\r")
		s.buf.Next(idx + 1)

		switch {
		case bytes.HasPrefix(line, anthropicEventPrefix):
			s.currentEvent = string(bytes.TrimSpace(bytes.TrimPrefix(line, anthropicEventPrefix)))
			if s.currentEvent == "message_stop" {
				done = true
			}
		case bytes.HasPrefix(line, dataPrefix):
			payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
			switch s.currentEvent {
			case "message_start":
				if u := parseAnthropicUsageObject([]byte(gjson.GetBytes(payload, "message").Raw)); u != nil {
					s.prompt = u.PromptTokens
					s.completion = u.CompletionTokens
					updated = true
				}
			case "message_delta":
				if v := gjson.GetBytes(payload, "usage.output_tokens"); v.Exists() {
					s.completion = uint64(v.Int())
					updated = true
				}
			}
		}
	}

	if !updated {
		return nil, done
	}
	u := &Usage{PromptTokens: s.prompt, CompletionTokens: s.completion, TotalTokens: s.prompt + s.completion}
	s.final = u
	return u, done
}

func (s *anthropicStreamState) Final() *Usage { return s.final }
