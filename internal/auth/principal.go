package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/tokengate/models"
)

// Credential is the raw username and token pair sent with a request
type Credential struct {
	Username string    `json:"username"`
	Token    uuid.UUID `json:"token"`
}

// Valid reports whether both halves of the credential are present
func (c Credential) Valid() bool {
	return c.Username != "" && c.Token != uuid.Nil
}

// Principal is an identity resolved from a credential together with its permissions
type Principal struct {
	ID            uuid.UUID
	Username      string
	Token         *uuid.UUID
	TokenIssuedAt *time.Time
	Permissions   models.PermissionSet
}

// PrincipalFromPerson converts a stored person into a principal
func PrincipalFromPerson(p *models.Person) *Principal {
	if p == nil {
		return nil
	}
	perms := make(models.PermissionSet, len(p.Permissions))
	for perm := range p.Permissions {
		perms[perm] = struct{}{}
	}
	return &Principal{
		ID:            p.ID,
		Username:      p.Username,
		Token:         p.Token,
		TokenIssuedAt: p.TokenIssuedAt,
		Permissions:   perms,
	}
}

// ExpiresAt returns the instant the principal's token stops being valid.
// ok is false when the principal holds no token.
func (p *Principal) ExpiresAt(lifetime time.Duration) (expiresAt time.Time, ok bool) {
	if p.Token == nil || p.TokenIssuedAt == nil {
		return time.Time{}, false
	}
	return p.TokenIssuedAt.Add(lifetime), true
}
