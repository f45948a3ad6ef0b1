// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ed25519MulticodecPrefix is the two-byte varint multicodec tag for an
// Ed25519 public key (0xed01), as did:key identifiers encode it.
var ed25519MulticodecPrefix = []byte{0xed, 0x01}

// DidKeyResolver implements KeyResolver for the did:key method: the
// public key is embedded in the identifier itself, so resolution never
// leaves the process. This is the default KeyResolver; did:web or other
// methods that require a network fetch are external collaborators, per
// spec, and can be wrapped around or composed with this one.
type DidKeyResolver struct{}

// NewDidKeyResolver returns a DidKeyResolver.
func NewDidKeyResolver() *DidKeyResolver { return &DidKeyResolver{} }

// ResolveVerificationKey decodes a did:key identifier into its embedded
// Ed25519 public key. Only the "EdDSA" / z6Mk... Ed25519 form is
// supported; any other multicodec prefix is rejected.
func (DidKeyResolver) ResolveVerificationKey(_ context.Context, did string) (string, []byte, error) {
	const prefix = "did:key:z"
	if !strings.HasPrefix(did, prefix) {
		return "", nil, fmt.Errorf("unsupported did method in %q, expected did:key", did)
	}
	encoded := strings.TrimPrefix(did, prefix)

	decoded, err := base58.Decode(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode did:key multibase: %w", err)
	}
	if len(decoded) < len(ed25519MulticodecPrefix) || decoded[0] != ed25519MulticodecPrefix[0] || decoded[1] != ed25519MulticodecPrefix[1] {
		return "", nil, fmt.Errorf("unsupported did:key multicodec prefix in %q", did)
	}
	key := decoded[len(ed25519MulticodecPrefix):]
	return "EdDSA", key, nil
}
