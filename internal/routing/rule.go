package routing

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/models"
)

// Tier is the access level of a route
type Tier int

const (
	TierPublic Tier = iota
	TierRequiresAuth
	TierAdminOnly
)

func (t Tier) String() string {
	switch t {
	case TierRequiresAuth:
		return "requires_auth"
	case TierAdminOnly:
		return "admin_only"
	default:
		return "public"
	}
}

// Source is where the credential for a route is read from
type Source int

const (
	SourceHeader Source = iota
	SourceCookie
)

func (s Source) String() string {
	if s == SourceCookie {
		return "cookie"
	}
	return "header"
}

// Endpoint is the declared access metadata of one operation
type Endpoint struct {
	Pattern     string
	Methods     []string
	Tier        Tier
	Permissions models.PermissionSet
	Mode        auth.Mode
}

// Rule is a resolved, read-only classification result
type Rule struct {
	Pattern     string
	Methods     []string
	Tier        Tier
	Permissions models.PermissionSet
	Mode        auth.Mode
	Source      Source
}

// IsPublic reports whether requests may skip authentication entirely
func (r Rule) IsPublic() bool {
	return r.Tier == TierPublic && len(r.Permissions) == 0
}

// RequiresAuthorization reports whether a permission check must follow authentication
func (r Rule) RequiresAuthorization() bool {
	return r.Tier == TierAdminOnly || len(r.Permissions) > 0
}

// compiledRule pairs a rule with its matchers
type compiledRule struct {
	rule     Rule
	matchers []glob.Glob
	methods  map[string]struct{}
	literals int
	wilds    int
	order    int
}

func (c *compiledRule) matches(method, path string) bool {
	if len(c.methods) > 0 {
		if _, ok := c.methods[method]; !ok {
			return false
		}
	}
	for _, m := range c.matchers {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// moreSpecific orders rules with more literal segments first, then fewer
// wildcards, then longer patterns, then declaration order.
func (c *compiledRule) moreSpecific(other *compiledRule) bool {
	if c.literals != other.literals {
		return c.literals > other.literals
	}
	if c.wilds != other.wilds {
		return c.wilds < other.wilds
	}
	if len(c.rule.Pattern) != len(other.rule.Pattern) {
		return len(c.rule.Pattern) > len(other.rule.Pattern)
	}
	return c.order < other.order
}

// segments splits a cleaned pattern or path into its non-empty segments
func segments(p string) []string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isWildcard(segment string) bool {
	return segment == "*" || segment == "**"
}

func hasWildcard(segment string) bool {
	return strings.ContainsAny(segment, "*?[{")
}

// endsInBareWildcard reports whether the final segment is "*" or "**"
func endsInBareWildcard(pattern string) bool {
	segs := segments(pattern)
	return len(segs) > 0 && isWildcard(segs[len(segs)-1])
}

// clone returns a copy that shares no storage with r
func (r Rule) clone() Rule {
	out := r
	if r.Methods != nil {
		out.Methods = append([]string(nil), r.Methods...)
	}
	if r.Permissions != nil {
		out.Permissions = copyPermissions(r.Permissions)
	}
	return out
}
