// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package apierrors defines the error taxonomy shared by the HTTP and
// JSON-RPC front ends of the gateway. Every pipeline stage returns one of
// these typed errors instead of panicking or returning an opaque error,
// so the top-level handler can render a consistent shape to the client.
package apierrors

import "fmt"

// Kind identifies which branch of the taxonomy an Error belongs to.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindRateLimit  Kind = "rate_limit"
	KindInternal   Kind = "internal"
	KindBilling    Kind = "billing"
)

// Error is a typed pipeline error carrying enough information for the
// top-level handler to pick an HTTP status code and a JSON error shape.
type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code, e.g. "model_not_supported"
	Type    string // OpenAI-style error type, e.g. "invalid_request_error"
	Message string
	Param   string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, status int, code, typ, message string) *Error {
	return &Error{Kind: kind, Code: code, Type: typ, Message: message, Status: status}
}

// Validation errors (400).
func Validation(code, message string) *Error {
	return newErr(KindValidation, 400, code, "invalid_request_error", message)
}

// ModelNotSupported is the specific validation error the orchestrator
// raises at the pricing gate and when the model field is missing from
// the request body.
func ModelNotSupported(message string) *Error {
	return Validation("model_not_supported", message)
}

// MessageTooLarge is raised when an incoming body exceeds the configured
// size cap (default 1 MiB).
func MessageTooLarge(limit int) *Error {
	return Validation("message_too_large", fmt.Sprintf("request body exceeds %d byte limit", limit))
}

// AuthMissing (401): no Authorization header present.
func AuthMissing() *Error {
	return newErr(KindAuth, 401, "auth_missing", "authentication_error", "missing Authorization header")
}

// AuthInvalid (403): signature verification failed, or caller lacks the
// admin role required for the route.
func AuthInvalid(message string) *Error {
	return newErr(KindAuth, 403, "auth_invalid", "authentication_error", message)
}

// NotFound (404): unknown provider or disallowed path.
func NotFound(code, message string) *Error {
	return newErr(KindNotFound, 404, code, "invalid_request_error", message)
}

// UpstreamPreByte (502): the upstream request failed before any response
// bytes reached the client.
func UpstreamPreByte(err error) *Error {
	e := newErr(KindUpstream, 502, "upstream_error", "api_error", "upstream request failed")
	e.Err = err
	return e
}

// UpstreamUnavailable (503): known upstream currently cannot accept
// requests (e.g. a crashed stdio MCP child, or the per-provider
// concurrency cap was exceeded).
func UpstreamUnavailable(message string) *Error {
	return newErr(KindUpstream, 503, "upstream_unavailable", "api_error", message)
}

// UpstreamTimeout (504): the per-request deadline expired.
func UpstreamTimeout() *Error {
	return newErr(KindUpstream, 504, "upstream_timeout", "api_error", "upstream request timed out")
}

// RateLimited (429): the billing hook's quota decision rejected the
// request.
func RateLimited(message string) *Error {
	return newErr(KindRateLimit, 429, "rate_limit_exceeded", "rate_limit_error", message)
}

// Internal (500): unexpected bug paths. requestID is always attached so
// it can be logged and handed back to the caller for support purposes.
func Internal(requestID string, err error) *Error {
	e := newErr(KindInternal, 500, "internal_error", "api_error", "internal error, request_id="+requestID)
	e.Err = err
	return e
}

// JSONBody is the wire shape for REST error responses: {"error": {...}}.
type JSONBody struct {
	Error JSONError `json:"error"`
}

// JSONError is the nested object within JSONBody.
type JSONError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Type    string `json:"type,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ToJSON renders the error into the REST wire shape.
func (e *Error) ToJSON() JSONBody {
	return JSONBody{Error: JSONError{
		Message: e.Message,
		Code:    e.Code,
		Type:    e.Type,
		Param:   e.Param,
	}}
}

// JSONRPCError is the {code,message,data?} shape used by the MCP surface.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ToJSONRPC renders the error into the JSON-RPC shape, mapping its
// HTTP-flavored status to a JSON-RPC error code. JSON-RPC reserves -32700..-32603 for protocol errors; application
// errors conventionally use -32000..-32099.
func (e *Error) ToJSONRPC() JSONRPCError {
	code := -32000
	switch e.Status {
	case 404:
		code = -32001
	case 401, 403:
		code = -32002
	case 503:
		code = -32003
	case 504:
		code = -32004
	case 429:
		code = -32005
	}
	return JSONRPCError{Code: code, Message: e.Message, Data: map[string]string{"code": e.Code}}
}

// As reports whether err is (or wraps) an *Error, narrowing its Kind.
func As(err error) (*Error, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e, true
	}
	return nil, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok { //nolint:errorlint
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error }) //nolint:errorlint
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
