package auth

import "github.com/upb/tokengate/models"

// Mode selects how a required permission set is matched
type Mode int

const (
	// ModeAny allows when the principal holds at least one required permission
	ModeAny Mode = iota
	// ModeAll allows when the principal holds every required permission
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "any"
}

// Authorize decides whether outcome satisfies required under mode.
// Anything other than an authenticated outcome is denied. An empty
// required set allows every authenticated principal under ModeAll and
// denies under ModeAny, matching plain set semantics.
func Authorize(outcome Outcome, required models.PermissionSet, mode Mode) bool {
	if !outcome.IsAuthenticated() {
		return false
	}
	held := outcome.Principal.Permissions
	if mode == ModeAll {
		return held.HasAll(required)
	}
	return held.HasAny(required)
}
