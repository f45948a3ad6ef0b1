// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package usage

// genericExtractor handles upstreams that speak the OpenAI wire format
// without any provider-specific extensions — litellm and openrouter
// both proxy OpenAI's chat-completions shape verbatim.
// It is a thin alias rather than a duplicate implementation, since the
// frame parsing is identical; it exists as a distinct constructor so
// call sites name the provider they mean instead of reusing OpenAI's
// name for an upstream that isn't OpenAI.
func Generic() Extractor { return openAIExtractor{} }

// ForProvider resolves the Extractor for a provider name as configured
// in the gateway's route rules.
func ForProvider(name string) (Extractor, bool) {
	switch name {
	case "openai":
		return OpenAI(), true
	case "anthropic":
		return Anthropic(), true
	case "google":
		return Google(), true
	case "openrouter", "litellm":
		return Generic(), true
	default:
		return nil, false
	}
}
