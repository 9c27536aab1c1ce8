// Package person manages accounts: login and logout, self-registration,
// administrative CRUD and the development administrator seed.
package person

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tokengate/internal/observability"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/repositories"
	"github.com/upb/tokengate/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// maxTokenAttempts bounds retries when a freshly generated token collides
const maxTokenAttempts = 3

// Auditor receives account events. Record must not block.
type Auditor interface {
	Record(log *models.AuditLog)
}

type nopAuditor struct{}

func (nopAuditor) Record(*models.AuditLog) {}

// Config holds PersonService settings
type Config struct {
	BcryptCost      int
	TokenExpiration time.Duration
	Now             func() time.Time
	NewToken        func() uuid.UUID
	Auditor         Auditor
}

// LoginResult is returned by a successful login
type LoginResult struct {
	PersonID    uuid.UUID
	Username    string
	Token       uuid.UUID
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Permissions models.PermissionSet
}

// RegisterInput holds the fields of a self-registration
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// CreateInput holds the fields of an administrative create
type CreateInput struct {
	Username    string
	Password    string
	Email       string
	Permissions models.PermissionSet
}

// UpdateInput holds a partial update; nil fields are left unchanged
type UpdateInput struct {
	ID          uuid.UUID
	Username    *string
	Email       *string
	Password    *string
	Permissions models.PermissionSet
}

// SeedInput describes the development administrator
type SeedInput struct {
	Username string
	Email    string
	Password string
	Token    uuid.UUID
}

// PersonService handles account management and token issuance
type PersonService struct {
	repo      repositories.PersonRepository
	txMgr     repositories.TransactionManager
	cfg       Config
	dummyHash []byte
	logger    *zap.Logger
}

// NewPersonService creates a new PersonService instance
func NewPersonService(repo repositories.PersonRepository, txMgr repositories.TransactionManager, cfg Config, logger *zap.Logger) (*PersonService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewToken == nil {
		cfg.NewToken = uuid.New
	}
	if cfg.Auditor == nil {
		cfg.Auditor = nopAuditor{}
	}

	// compared against on unknown usernames so both login failures cost one bcrypt round
	dummy, err := bcrypt.GenerateFromPassword([]byte("tokengate-unknown-user"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("invalid bcrypt cost %d: %w", cfg.BcryptCost, err)
	}

	return &PersonService{
		repo:      repo,
		txMgr:     txMgr,
		cfg:       cfg,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

// Login checks the password and issues a fresh token
func (s *PersonService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	p, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			s.logger.Info("login failed", zap.String("username", username), zap.String("reason", "unknown user"))
			s.audit(ctx, models.NewAuditLog(models.AuditActionLoginFailed, username).
				WithDetails(map[string]string{"reason": "unknown user"}))
			return nil, services.ErrLoginFailed
		}
		return nil, services.WrapInternal("failed to load person", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed", zap.String("username", username), zap.String("reason", "wrong password"))
		s.audit(ctx, models.NewAuditLog(models.AuditActionLoginFailed, username).
			WithResource(p.ID).
			WithDetails(map[string]string{"reason": "wrong password"}))
		return nil, services.ErrLoginFailed
	}

	token, issuedAt, err := s.issueToken(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", zap.String("person_id", p.ID.String()), zap.String("username", p.Username))
	s.audit(ctx, models.NewAuditLog(models.AuditActionLoginSucceeded, p.Username).WithActor(p.ID).WithResource(p.ID))

	return &LoginResult{
		PersonID:    p.ID,
		Username:    p.Username,
		Token:       token,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(s.cfg.TokenExpiration),
		Permissions: p.Permissions,
	}, nil
}

// Logout clears the token of the given person
func (s *PersonService) Logout(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.UpdateToken(ctx, id, nil, nil); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewDomainError(services.ErrorTypeUnauthorized, "No matching Token!", err)
		}
		return services.WrapInternal("failed to clear token", err)
	}

	s.logger.Info("logout succeeded", zap.String("person_id", id.String()))
	s.audit(ctx, models.NewAuditLog(models.AuditActionLogout, "").WithActor(id).WithResource(id))
	return nil
}

// Register creates a USER account that is logged in immediately
func (s *PersonService) Register(ctx context.Context, in RegisterInput) (*models.Person, error) {
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	p := models.NewPerson(in.Username, in.Email, hash, models.DefaultPermissions())
	p.SetToken(s.cfg.NewToken(), s.cfg.Now())

	if err := s.create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("person registered", zap.String("person_id", p.ID.String()), zap.String("username", p.Username))
	s.audit(ctx, models.NewAuditLog(models.AuditActionRegistered, p.Username).WithActor(p.ID).WithResource(p.ID))
	return p, nil
}

// Create adds an account with explicit permissions and no token
func (s *PersonService) Create(ctx context.Context, in CreateInput) (*models.Person, error) {
	if len(in.Permissions) == 0 {
		in.Permissions = models.DefaultPermissions()
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	p := models.NewPerson(in.Username, in.Email, hash, in.Permissions)
	if err := s.create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("person created",
		zap.String("person_id", p.ID.String()),
		zap.String("username", p.Username),
		zap.Strings("permissions", p.Permissions.Strings()),
	)
	s.audit(ctx, models.NewAuditLog(models.AuditActionPersonCreated, p.Username).
		WithResource(p.ID).
		WithDetails(map[string][]string{"permissions": p.Permissions.Strings()}))
	return p, nil
}

// Update applies a partial update inside a transaction
func (s *PersonService) Update(ctx context.Context, in UpdateInput) (*models.Person, error) {
	var hash string
	if in.Password != nil {
		h, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	updated, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Person, error) {
		repo := s.repo.WithTx(tx)

		p, err := repo.GetByID(ctx, in.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.NewDomainError(services.ErrorTypeNotFound,
					fmt.Sprintf("Could not update User %s - User does not exist!", in.ID), err)
			}
			return nil, services.WrapInternal("failed to load person", err)
		}

		if in.Username != nil {
			p.Username = *in.Username
		}
		if in.Email != nil {
			p.Email = *in.Email
		}
		if in.Password != nil {
			p.PasswordHash = hash
		}
		if in.Permissions != nil {
			p.Permissions = in.Permissions
		}
		p.UpdatedAt = s.cfg.Now()

		if err := repo.Update(ctx, p); err != nil {
			switch {
			case errors.Is(err, repositories.ErrDuplicate):
				return nil, services.NewDomainError(services.ErrorTypeConflict,
					fmt.Sprintf("Could not update User %s - Username already exists!", in.ID), err)
			case errors.Is(err, repositories.ErrNotFound):
				return nil, services.NewDomainError(services.ErrorTypeNotFound,
					fmt.Sprintf("Could not update User %s - User does not exist!", in.ID), err)
			}
			return nil, services.WrapInternal("failed to update person", err)
		}

		return p, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("person updated", zap.String("person_id", updated.ID.String()))
	s.audit(ctx, models.NewAuditLog(models.AuditActionPersonUpdated, updated.Username).
		WithResource(updated.ID).
		WithDetails(map[string]interface{}{"fields": in.changedFields()}))
	return updated, nil
}

// Delete removes an account. actorID may not delete itself.
func (s *PersonService) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return services.ErrSelfDelete
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.NewDomainError(services.ErrorTypeNotFound,
				fmt.Sprintf("Could not delete User %s - User does not exist!", id), err)
		}
		return services.WrapInternal("failed to delete person", err)
	}

	s.logger.Info("person deleted", zap.String("person_id", id.String()), zap.String("actor_id", actorID.String()))
	s.audit(ctx, models.NewAuditLog(models.AuditActionPersonDeleted, "").WithActor(actorID).WithResource(id))
	return nil
}

// Get returns a single account
func (s *PersonService) Get(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrPersonNotFound
		}
		return nil, services.WrapInternal("failed to load person", err)
	}
	return p, nil
}

// List returns every account ordered by username
func (s *PersonService) List(ctx context.Context) ([]*models.Person, error) {
	persons, err := s.repo.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list persons", err)
	}
	if persons == nil {
		persons = []*models.Person{}
	}
	return persons, nil
}

// ListPermissions returns the names of every known permission
func (s *PersonService) ListPermissions() []string {
	names := make([]string, len(models.AllPermissions))
	for i, p := range models.AllPermissions {
		names[i] = p.String()
	}
	return names
}

// SeedAdmin creates the development administrator unless the username exists
func (s *PersonService) SeedAdmin(ctx context.Context, in SeedInput) error {
	_, err := s.repo.GetByUsername(ctx, in.Username)
	if err == nil {
		s.logger.Info("seed admin already present", zap.String("username", in.Username))
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to look up seed admin: %w", err)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return err
	}

	p := models.NewPerson(in.Username, in.Email, hash, models.AdminPermissions())
	p.SetToken(in.Token, s.cfg.Now())

	if err := s.repo.Create(ctx, p); err != nil {
		return fmt.Errorf("failed to create seed admin: %w", err)
	}

	s.logger.Warn("seeded development admin", zap.String("username", p.Username), zap.String("person_id", p.ID.String()))
	return nil
}

// audit stamps the request id and hands the entry to the auditor
func (s *PersonService) audit(ctx context.Context, log *models.AuditLog) {
	log.Timestamp = s.cfg.Now()
	s.cfg.Auditor.Record(log.WithRequest(observability.RequestID(ctx)))
}

// changedFields names the fields an update touches, never their values
func (in UpdateInput) changedFields() []string {
	var fields []string
	if in.Username != nil {
		fields = append(fields, "username")
	}
	if in.Email != nil {
		fields = append(fields, "email")
	}
	if in.Password != nil {
		fields = append(fields, "password")
	}
	if in.Permissions != nil {
		fields = append(fields, "permissions")
	}
	return fields
}

func (s *PersonService) create(ctx context.Context, p *models.Person) error {
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return services.NewDomainError(services.ErrorTypeConflict,
				"Could not create User - Username already exists!", err)
		}
		return services.WrapInternal("failed to create person", err)
	}
	return nil
}

func (s *PersonService) issueToken(ctx context.Context, id uuid.UUID) (uuid.UUID, time.Time, error) {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token := s.cfg.NewToken()
		issuedAt := s.cfg.Now()

		err := s.repo.UpdateToken(ctx, id, &token, &issuedAt)
		if err == nil {
			return token, issuedAt, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return uuid.Nil, time.Time{}, services.WrapInternal("failed to store token", err)
		}
		s.logger.Warn("token collision, regenerating", zap.Int("attempt", attempt))
	}
	return uuid.Nil, time.Time{}, services.ErrDuplicateToken
}

func (s *PersonService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", services.NewDomainError(services.ErrorTypeValidation, "password is too long", err)
		}
		return "", services.WrapInternal("failed to hash password", err)
	}
	return string(hash), nil
}
