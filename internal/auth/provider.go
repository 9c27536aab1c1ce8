package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultExpiration is the token lifetime used when none is configured
const DefaultExpiration = time.Hour

// ErrPrincipalNotFound is returned by a UserStore when no person owns the pair
var ErrPrincipalNotFound = errors.New("principal not found")

// UserStore resolves a username and token pair to a principal.
// Implementations return ErrPrincipalNotFound when nothing matches;
// any other error is treated as an internal failure.
type UserStore interface {
	FindByUsernameAndToken(ctx context.Context, username string, token uuid.UUID) (*Principal, error)
}

// Provider validates credentials against a UserStore and enforces token expiry
type Provider struct {
	store      UserStore
	expiration time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// ProviderOption customizes a Provider
type ProviderOption func(*Provider)

// WithClock replaces the time source, used by tests
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates a provider. A non-positive expiration falls back to DefaultExpiration.
func NewProvider(store UserStore, expiration time.Duration, logger *zap.Logger, opts ...ProviderOption) *Provider {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		store:      store,
		expiration: expiration,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Expiration returns the configured token lifetime
func (p *Provider) Expiration() time.Duration {
	return p.expiration
}

// Authenticate resolves cred to an outcome.
// The returned error is non-nil only when the store fails; unknown users
// and wrong tokens both yield a Rejected(KindInvalidCredentials) outcome.
func (p *Provider) Authenticate(ctx context.Context, cred Credential) (Outcome, error) {
	if !cred.Valid() {
		return Rejected(KindMalformedCredential, "Authentication failed!"), nil
	}

	principal, err := p.store.FindByUsernameAndToken(ctx, cred.Username, cred.Token)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			p.logger.Debug("no principal for credential", zap.String("username", cred.Username))
			return Rejected(KindInvalidCredentials, "Authentication failed!"), nil
		}
		return Outcome{}, fmt.Errorf("failed to look up principal: %w", err)
	}
	if principal == nil {
		return Rejected(KindInvalidCredentials, "Authentication failed!"), nil
	}

	expiresAt, ok := principal.ExpiresAt(p.expiration)
	if !ok {
		// a store should never match a token the principal does not hold
		return Rejected(KindInvalidCredentials, "Authentication failed!"), nil
	}
	if !p.now().Before(expiresAt) {
		p.logger.Debug("token expired",
			zap.String("username", principal.Username),
			zap.Time("expires_at", expiresAt),
		)
		return Rejected(KindTokenExpired, fmt.Sprintf("Token expired at %s", expiresAt.UTC().Format(time.RFC3339))), nil
	}

	return Authenticated(principal), nil
}
