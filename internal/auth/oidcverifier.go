// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier is an IdentityVerifier for identity kits that sign
// DIDAuthV1 tokens as a full compact JWS (header.payload.signature)
// against a published JWKS, rather than the raw detached Ed25519
// signature JOSEVerifier checks. Deployments pick whichever verifier
// matches their identity kit's signing scheme.
type OIDCVerifier struct {
	keySet oidc.KeySet
}

// NewOIDCVerifier builds an OIDCVerifier that fetches and caches
// verification keys from the JWKS published at jwksURL.
func NewOIDCVerifier(ctx context.Context, jwksURL string) *OIDCVerifier {
	return &OIDCVerifier{keySet: oidc.NewRemoteKeySet(ctx, jwksURL)}
}

// newOIDCVerifierWithKeySet builds an OIDCVerifier over an arbitrary
// oidc.KeySet, letting tests substitute a fake key set for a live JWKS
// fetch.
func newOIDCVerifierWithKeySet(ks oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{keySet: ks}
}

// Verify checks token's signature against the configured JWKS and
// returns the "sub" claim (the caller's DID) from its verified payload.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (string, error) {
	payload, err := v.keySet.VerifySignature(ctx, token)
	if err != nil {
		return "", fmt.Errorf("verify oidc-signed did token: %w", err)
	}

	var claims struct {
		Subject string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("decode did token claims: %w", err)
	}
	if !strings.HasPrefix(claims.Subject, "did:") {
		return "", fmt.Errorf("did token sub claim %q is not a did", claims.Subject)
	}
	return claims.Subject, nil
}
