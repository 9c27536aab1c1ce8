package routing

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/models"
	"go.uber.org/zap"
)

var (
	// ErrPublicWildcard is returned when a public pattern ends in "*" or "**"
	ErrPublicWildcard = errors.New("public pattern must not end in a bare wildcard")
	// ErrInvalidPattern is returned for empty or relative patterns
	ErrInvalidPattern = errors.New("invalid route pattern")
)

// Config holds the base paths that decide the default tier of unannotated routes
type Config struct {
	APIBase   string
	AdminBase string
}

// Classifier resolves (method, path) to a Rule. It is immutable once built
// and safe for concurrent use.
type Classifier struct {
	apiBase   string
	adminBase string
	public    []*compiledRule
	admin     []*compiledRule
	protected []*compiledRule
}

// NewClassifier compiles endpoints into a classification table.
// It fails if any pattern is invalid or a public pattern ends in a bare wildcard.
func NewClassifier(cfg Config, endpoints []Endpoint, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Classifier{
		apiBase:   cleanBase(cfg.APIBase),
		adminBase: cleanBase(cfg.AdminBase),
	}

	for i, ep := range endpoints {
		compiled, err := c.compile(ep, i)
		if err != nil {
			return nil, err
		}
		switch ep.Tier {
		case TierPublic:
			c.public = append(c.public, compiled)
		case TierAdminOnly:
			c.admin = append(c.admin, compiled)
		default:
			c.protected = append(c.protected, compiled)
		}
	}

	for _, set := range [][]*compiledRule{c.public, c.admin, c.protected} {
		sort.SliceStable(set, func(i, j int) bool { return set[i].moreSpecific(set[j]) })
	}

	c.warnOverlaps(logger)

	logger.Info("route classifier built",
		zap.Int("public_rules", len(c.public)),
		zap.Int("admin_rules", len(c.admin)),
		zap.Int("protected_rules", len(c.protected)),
	)

	return c, nil
}

func (c *Classifier) compile(ep Endpoint, order int) (*compiledRule, error) {
	pattern := strings.TrimSpace(ep.Pattern)
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, ep.Pattern)
	}
	if ep.Tier == TierPublic && endsInBareWildcard(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrPublicWildcard, pattern)
	}

	segs := segments(pattern)
	normalized := "/" + strings.Join(segs, "/")

	sources := []string{normalized}
	// a trailing "**" also matches the parent path itself
	if len(segs) > 0 && segs[len(segs)-1] == "**" {
		parent := "/" + strings.Join(segs[:len(segs)-1], "/")
		sources = append(sources, parent)
	}

	matchers := make([]glob.Glob, 0, len(sources))
	for _, src := range sources {
		g, err := glob.Compile(src, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
		matchers = append(matchers, g)
	}

	methods := make(map[string]struct{}, len(ep.Methods))
	methodList := make([]string, 0, len(ep.Methods))
	for _, m := range ep.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, dup := methods[m]; !dup {
			methodList = append(methodList, m)
		}
		methods[m] = struct{}{}
	}

	perms := copyPermissions(ep.Permissions)
	if ep.Tier == TierAdminOnly && len(perms) == 0 {
		perms = models.AdminPermissions()
	}

	literals, wilds := 0, 0
	for _, s := range segs {
		if hasWildcard(s) {
			wilds++
		} else {
			literals++
		}
	}

	return &compiledRule{
		rule: Rule{
			Pattern:     normalized,
			Methods:     methodList,
			Tier:        ep.Tier,
			Permissions: perms,
			Mode:        ep.Mode,
			Source:      c.sourceFor(normalized),
		},
		matchers: matchers,
		methods:  methods,
		literals: literals,
		wilds:    wilds,
		order:    order,
	}, nil
}

// warnOverlaps logs public rules that shadow a protected rule
func (c *Classifier) warnOverlaps(logger *zap.Logger) {
	for _, pub := range c.public {
		for _, group := range [][]*compiledRule{c.admin, c.protected} {
			for _, prot := range group {
				if !methodsOverlap(pub, prot) {
					continue
				}
				if prot.matches(firstMethod(pub, prot), pub.rule.Pattern) || pub.matches(firstMethod(pub, prot), prot.rule.Pattern) {
					logger.Warn("public route overrides protected route",
						zap.String("public_pattern", pub.rule.Pattern),
						zap.String("protected_pattern", prot.rule.Pattern),
						zap.String("protected_tier", prot.rule.Tier.String()),
					)
				}
			}
		}
	}
}

// Classify returns the rule governing method and path
func (c *Classifier) Classify(method, p string) Rule {
	method = strings.ToUpper(method)
	p = cleanPath(p)

	for _, group := range [][]*compiledRule{c.public, c.admin, c.protected} {
		for _, cr := range group {
			if cr.matches(method, p) {
				return cr.rule.clone()
			}
		}
	}

	switch {
	case c.adminBase != "" && under(p, c.adminBase):
		return Rule{
			Pattern:     c.adminBase + "/**",
			Tier:        TierAdminOnly,
			Permissions: models.AdminPermissions(),
			Mode:        auth.ModeAny,
			Source:      SourceCookie,
		}
	case c.apiBase != "" && under(p, c.apiBase):
		return Rule{
			Pattern: c.apiBase + "/**",
			Tier:    TierRequiresAuth,
			Source:  SourceHeader,
		}
	default:
		return Rule{Pattern: p, Tier: TierPublic, Source: SourceHeader}
	}
}

func (c *Classifier) sourceFor(pattern string) Source {
	if c.adminBase != "" && under(pattern, c.adminBase) {
		return SourceCookie
	}
	return SourceHeader
}

func under(p, base string) bool {
	if base == "/" {
		return true
	}
	return p == base || strings.HasPrefix(p, base+"/")
}

func cleanBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return cleanPath(base)
}

// cleanPath resolves dot segments and strips trailing slashes
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func copyPermissions(src models.PermissionSet) models.PermissionSet {
	out := make(models.PermissionSet, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}

func methodsOverlap(a, b *compiledRule) bool {
	if len(a.methods) == 0 || len(b.methods) == 0 {
		return true
	}
	for m := range a.methods {
		if _, ok := b.methods[m]; ok {
			return true
		}
	}
	return false
}

// firstMethod picks a method both rules accept, for probing matchers
func firstMethod(a, b *compiledRule) string {
	for m := range a.methods {
		if len(b.methods) == 0 {
			return m
		}
		if _, ok := b.methods[m]; ok {
			return m
		}
	}
	for m := range b.methods {
		return m
	}
	return "GET"
}
