// Package client is the transport layer between studyctl and the remote
// study service.
//
// # Overview
//
// HTTPClient issues JSON requests against the REST endpoints, attaches the
// bearer credential, keeps the server-side session cookie, applies a
// bounded request timeout and an outbound rate limit, and unwraps the
// service envelope {success, data, error, message, pagination}.
//
// # Error Handling
//
// Every failure is classified into one of the sentinel errors below and
// returned as an *APIError, so callers can branch with errors.Is and still
// reach the status code, server message and Retry-After hint with
// errors.As:
//
//   - ErrTransport: network unreachable, timeout, malformed response
//   - ErrServer: the service answered with a 5xx or success=false
//   - ErrUnauthorized: missing, expired or rejected credential
//   - ErrNotFound: the record does not exist (any more)
//   - ErrValidation: the service rejected the input
//   - ErrRateLimited: too many requests; see RetryAfter
//
// ErrTransport and ErrServer are the failures that stores may answer from
// the local cache (see Fallback).
package client
