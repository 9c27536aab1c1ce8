package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// AuthorizationHeader carries the JSON credential object
	AuthorizationHeader = "Authorization"
	// UsernameCookieName and TokenCookieName carry the cookie credential pair
	UsernameCookieName = "username"
	TokenCookieName    = "token"
)

// Extractor pulls a candidate credential out of a request.
// ok is false when no usable credential is present; extractors never fail otherwise.
type Extractor interface {
	Extract(r *http.Request) (cred Credential, ok bool)
}

// HeaderExtractor reads the credential from the Authorization header.
// The header value is a JSON object {"username": "...", "token": "<uuid>"}
// rather than a "Bearer" string; clients depend on this exact format.
type HeaderExtractor struct{}

// Extract implements Extractor
func (HeaderExtractor) Extract(r *http.Request) (Credential, bool) {
	return ParseHeaderCredential(r.Header.Get(AuthorizationHeader))
}

// headerCredential mirrors the wire format with the token kept as a string so
// a malformed UUID can be told apart from a JSON syntax error.
type headerCredential struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// ParseHeaderCredential decodes an Authorization header value
func ParseHeaderCredential(value string) (Credential, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Credential{}, false
	}

	var raw headerCredential
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return Credential{}, false
	}

	token, ok := parseToken(raw.Token)
	if !ok || raw.Username == "" {
		return Credential{}, false
	}

	return Credential{Username: raw.Username, Token: token}, true
}

// CookieExtractor reads the credential from the "username" and "token" cookies.
// Cookie names are matched case-insensitively; the first match wins.
type CookieExtractor struct{}

// Extract implements Extractor
func (CookieExtractor) Extract(r *http.Request) (Credential, bool) {
	var username, token *http.Cookie
	for _, c := range r.Cookies() {
		switch {
		case username == nil && strings.EqualFold(c.Name, UsernameCookieName):
			username = c
		case token == nil && strings.EqualFold(c.Name, TokenCookieName):
			token = c
		}
	}
	if username == nil || token == nil || username.Value == "" {
		return Credential{}, false
	}

	parsed, ok := parseToken(token.Value)
	if !ok {
		return Credential{}, false
	}

	return Credential{Username: username.Value, Token: parsed}, true
}

// parseToken accepts only the canonical 36 character UUID form
func parseToken(s string) (uuid.UUID, bool) {
	if len(s) != 36 {
		return uuid.Nil, false
	}
	token, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return token, true
}
