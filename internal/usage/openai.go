// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"bytes"

	"github.com/tidwall/gjson"
)

var (
	dataPrefix  = []byte("data:")
	doneMarker  = []byte("[DONE]")
	sseTerm     = []byte("\n\n")
)

// openAIExtractor parses the OpenAI chat/responses wire format: a single
// JSON object for non-streaming calls, or a sequence of SSE "data: "
// frames terminated by "data: [DONE]" for streaming ones. Grounded on the
// buffered SSE line-scanning approach used by the upstream project's
// openai-to-openai translator, which also treats "latest usage wins" as
// the merge rule across chunks.
type openAIExtractor struct{}

// OpenAI returns the Extractor for OpenAI-compatible upstreams (OpenAI
// itself, and by extension litellm/openrouter which proxy OpenAI's wire
// format — see Generic for the cases where that format is the only thing
// known about the upstream).
func OpenAI() Extractor { return openAIExtractor{} }

func (openAIExtractor) FromResponseBody(body []byte) (*Usage, error) {
	return parseOpenAIUsageObject(body), nil
}

func (openAIExtractor) NewStreamState() StreamState {
	return &openAIStreamState{}
}

// parseOpenAIUsageObject extracts {"usage": {"prompt_tokens":, ...}} from
// one decoded OpenAI-shaped JSON object, folding tool-content counters
// into prompt tokens.
func parseOpenAIUsageObject(obj []byte) *Usage {
	u := gjson.GetBytes(obj, "usage")
	if !u.Exists() {
		return nil
	}
	usage := Usage{
		PromptTokens:     uint64(u.Get("prompt_tokens").Int()),
		CompletionTokens: uint64(u.Get("completion_tokens").Int()),
		TotalTokens:      uint64(u.Get("total_tokens").Int()),
	}
	var toolTokens uint64
	if v := u.Get("prompt_tokens_details.web_search_tokens"); v.Exists() {
		toolTokens += uint64(v.Int())
	}
	if v := u.Get("prompt_tokens_details.file_search_tokens"); v.Exists() {
		toolTokens += uint64(v.Int())
	}
	if toolTokens > 0 {
		usage = usage.FoldToolContentTokens(toolTokens)
	}
	return &usage
}

// openAIStreamState buffers bytes across chunk boundaries and scans
// complete "data: ..." lines out of the buffer on every Feed call, the
// same incremental-buffer approach the grounding translator uses instead
// of re-parsing the whole stream from scratch each time.
type openAIStreamState struct {
	buf   bytes.Buffer
	final *Usage
}

func (s *openAIStreamState) Feed(chunk []byte) (*Usage, bool) {
	s.buf.Write(chunk)
	done := false
	var latest *Usage

	for {
		buf := s.buf.Bytes()
		idx := bytes.Index(buf, sseTerm)
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(buf[:idx])
		s.buf.Next(idx + len(sseTerm))

		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if bytes.Equal(payload, doneMarker) {
			done = true
			continue
		}
		if u := parseOpenAIUsageObject(payload); u != nil {
			latest = u
		}
	}

	if latest != nil {
		s.final = latest
	}
	return latest, done
}

func (s *openAIStreamState) Final() *Usage { return s.final }
