package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Permission is a named capability a person may hold
type Permission string

const (
	PermissionUser  Permission = "USER"
	PermissionAdmin Permission = "ADMIN"
)

// AllPermissions lists every known permission in declaration order
var AllPermissions = []Permission{PermissionUser, PermissionAdmin}

// ParsePermission converts a string into a known Permission.
// Matching is case-insensitive; unknown names are rejected.
func ParsePermission(s string) (Permission, error) {
	candidate := Permission(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range AllPermissions {
		if p == candidate {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission: %q", s)
}

// String returns the permission name
func (p Permission) String() string {
	return string(p)
}

// PermissionSet is an unordered set of permissions
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissionSet parses a list of permission names into a set
func ParsePermissionSet(names []string) (PermissionSet, error) {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		p, err := ParsePermission(name)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// DefaultPermissions returns the permissions granted to self-registered users
func DefaultPermissions() PermissionSet {
	return NewPermissionSet(PermissionUser)
}

// AdminPermissions returns the permissions granted to the seeded administrator
func AdminPermissions() PermissionSet {
	return NewPermissionSet(PermissionAdmin)
}

// Has reports whether p is in the set
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the set shares at least one permission with required
func (s PermissionSet) HasAny(required PermissionSet) bool {
	for p := range required {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every permission in required is in the set
func (s PermissionSet) HasAll(required PermissionSet) bool {
	for p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Slice returns the permissions sorted by name
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the permission names sorted
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array of names
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of names, rejecting unknown permissions
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParsePermissionSet(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
