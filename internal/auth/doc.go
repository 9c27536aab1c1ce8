// Package auth provides authentication and authorization primitives
// for tokengate.
//
// This package implements:
//   - Credential extraction from the Authorization header and from cookies
//   - Opaque token validation against a user store
//   - Token expiry enforcement
//   - Permission checks with any-of and all-of semantics
//
// Everything here is transport independent except the extractors, which
// read a *http.Request. The request pipeline in package middleware composes
// these pieces.
package auth
