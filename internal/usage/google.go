// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// googleExtractor parses Gemini's generateContent wire format.
// Non-streaming calls return a single JSON object with a top-level
// "usageMetadata". Streaming calls (streamGenerateContent) return either
// a JSON array of chunk objects (the array brackets/commas arrive
// incrementally) or, with alt=sse, "data: " framed chunks; both shapes
// carry their own "usageMetadata" per chunk, with later chunks' counts
// superseding earlier ones.
type googleExtractor struct{}

// Google returns the Extractor for the Gemini API family.
func Google() Extractor { return googleExtractor{} }

func (googleExtractor) FromResponseBody(body []byte) (*Usage, error) {
	return parseGoogleUsageObject(body), nil
}

func (googleExtractor) NewStreamState() StreamState {
	return &googleStreamState{}
}

func parseGoogleUsageObject(obj []byte) *Usage {
	m := gjson.GetBytes(obj, "usageMetadata")
	if !m.Exists() {
		return nil
	}
	usage := Usage{
		PromptTokens:     uint64(m.Get("promptTokenCount").Int()),
		CompletionTokens: uint64(m.Get("candidatesTokenCount").Int()),
		TotalTokens:      uint64(m.Get("totalTokenCount").Int()),
	}
	if v := m.Get("toolUsePromptTokenCount"); v.Exists() {
		usage = usage.FoldToolContentTokens(uint64(v.Int()))
	}
	return &usage
}

// googleStreamState handles both the bare-JSON-array framing used by
// streamGenerateContent?alt=json (the default) and the SSE framing used
// with alt=sse, by scanning for complete top-level JSON objects in the
// buffered bytes rather than depending on either framing's delimiters.
type googleStreamState struct {
	buf   bytes.Buffer
	final *Usage
}

func (s *googleStreamState) Feed(chunk []byte) (*Usage, bool) {
	s.buf.Write(chunk)
	var latest *Usage

	for {
		buf := s.buf.Bytes()
		start := bytes.IndexByte(buf, '{')
		if start < 0 {
			break
		}
		end, ok := matchingBrace(buf[start:])
		if !ok {
			break
		}
		obj := buf[start : start+end+1]
		s.buf.Next(start + end + 1)

		if u := parseGoogleUsageObject(obj); u != nil {
			latest = u
		}
	}

	if latest != nil {
		s.final = latest
	}
	// Gemini's stream framing has no explicit [DONE] sentinel; callers
	// detect completion by the transport closing rather than a marker.
	return latest, false
}

func (s *googleStreamState) Final() *Usage { return s.final }

// matchingBrace returns the index, within buf, of the closing brace that
// matches the opening brace at buf[0], tracking string literals so braces
// inside quoted values don't confuse the depth count. ok is false when
// buf does not yet contain a complete object.
func matchingBrace(buf []byte) (idx int, ok bool) {
	depth := 0
	inString := false
	escaped := false
	for i, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
