// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the DID-based Auth Gate: it
// verifies the Authorization header on every request, attaches the
// caller's DID to the request context on success, and gates admin-only
// routes against a configured allowlist.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/nuwa-protocol/llm-gateway/internal/apierrors"
)

// schemePrefix is the authentication scheme this gate accepts, per
//: "Authorization: DIDAuthV1 <token>".
const schemePrefix = "DIDAuthV1 "

// IdentityVerifier checks a DIDAuthV1 token and returns the DID it
// attests to. Implementations call out to an external identity service;
// a dummy implementation is used only when Gate.skipAuth is set.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (did string, err error)
}

// Gate is the Auth Gate described here
type Gate struct {
	verifier  IdentityVerifier
	adminDIDs map[string]struct{}
	skipAuth  bool
	dummyDID  string
}

// New builds a Gate backed by verifier, with admin access restricted to
// adminDIDs.
func New(verifier IdentityVerifier, adminDIDs []string) *Gate {
	g := &Gate{verifier: verifier, adminDIDs: make(map[string]struct{}, len(adminDIDs))}
	for _, did := range adminDIDs {
		g.adminDIDs[did] = struct{}{}
	}
	return g
}

// NewSkipAuth builds a Gate that bypasses verification and attaches
// dummyDID to every request, for tests only.
func NewSkipAuth(dummyDID string, adminDIDs []string) *Gate {
	g := New(nil, adminDIDs)
	g.skipAuth = true
	g.dummyDID = dummyDID
	return g
}

// Authenticate checks req's Authorization header and returns the
// verified caller DID, or a typed *apierrors.Error (401 missing header,
// 403 invalid signature)
func (g *Gate) Authenticate(req *http.Request) (string, *apierrors.Error) {
	if g.skipAuth {
		return g.dummyDID, nil
	}

	header := req.Header.Get("Authorization")
	if header == "" {
		return "", apierrors.AuthMissing()
	}
	if !strings.HasPrefix(header, schemePrefix) {
		return "", apierrors.AuthInvalid("unsupported authorization scheme")
	}
	token := strings.TrimPrefix(header, schemePrefix)
	if token == "" {
		return "", apierrors.AuthInvalid("empty bearer token")
	}

	did, err := g.verifier.Verify(req.Context(), token)
	if err != nil {
		return "", apierrors.AuthInvalid("signature verification failed: " + err.Error())
	}
	return did, nil
}

// IsAdmin reports whether did is present in the configured admin
// allowlist.
func (g *Gate) IsAdmin(did string) bool {
	_, ok := g.adminDIDs[did]
	return ok
}

// RequireAdmin is the check admin endpoints call after Authenticate
// succeeds: non-admin callers get a 403
func (g *Gate) RequireAdmin(did string) *apierrors.Error {
	if g.IsAdmin(did) {
		return nil
	}
	return apierrors.AuthInvalid("caller is not an admin")
}

type callerDIDKey struct{}

// WithCallerDID returns a context carrying callerDid, for the pipeline
// stages downstream of Authenticate.
func WithCallerDID(ctx context.Context, callerDID string) context.Context {
	return context.WithValue(ctx, callerDIDKey{}, callerDID)
}

// CallerDIDFromContext returns the DID attached by WithCallerDID, if any.
func CallerDIDFromContext(ctx context.Context) (string, bool) {
	did, ok := ctx.Value(callerDIDKey{}).(string)
	return did, ok
}
