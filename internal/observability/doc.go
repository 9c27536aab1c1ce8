// Package observability builds the process logger and the per-request
// access log.
//
// Request lines carry the chi request id so they can be joined with the
// lines logged by the auth pipeline for the same request.
package observability
