package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a user account that can log in and hold an access token
type Person struct {
	ID            uuid.UUID     `json:"personId" db:"id"`
	Username      string        `json:"username" db:"username"`
	Email         string        `json:"email" db:"email"`
	PasswordHash  string        `json:"-" db:"password_hash"`
	Token         *uuid.UUID    `json:"-" db:"token"`
	TokenIssuedAt *time.Time    `json:"tokenIssuedAt,omitempty" db:"token_issued_at"`
	Permissions   PermissionSet `json:"permissions" db:"permissions"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// NewPerson creates a new Person with the given password hash and permissions.
// A nil permission set falls back to DefaultPermissions.
func NewPerson(username, email, passwordHash string, permissions PermissionSet) *Person {
	if permissions == nil {
		permissions = DefaultPermissions()
	}
	now := time.Now()
	return &Person{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Permissions:  permissions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SetToken assigns a token and stamps its issue time.
// The token and its timestamp are always set or cleared together.
func (p *Person) SetToken(token uuid.UUID, issuedAt time.Time) {
	p.Token = &token
	p.TokenIssuedAt = &issuedAt
}

// HasToken returns true if the person currently holds a token
func (p *Person) HasToken() bool {
	return p.Token != nil && p.TokenIssuedAt != nil
}
