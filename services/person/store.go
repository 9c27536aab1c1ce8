package person

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/repositories"
)

// PrincipalStore adapts a PersonRepository to auth.UserStore
type PrincipalStore struct {
	repo repositories.PersonRepository
}

// NewPrincipalStore creates a new PrincipalStore
func NewPrincipalStore(repo repositories.PersonRepository) *PrincipalStore {
	return &PrincipalStore{repo: repo}
}

// FindByUsernameAndToken implements auth.UserStore
func (s *PrincipalStore) FindByUsernameAndToken(ctx context.Context, username string, token uuid.UUID) (*auth.Principal, error) {
	p, err := s.repo.GetByUsernameAndToken(ctx, username, token)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, err
	}
	return auth.PrincipalFromPerson(p), nil
}
