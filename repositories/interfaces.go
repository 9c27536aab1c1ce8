package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tokengate/models"
)

var (
	// ErrNotFound is returned when no row matches the lookup
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction runs fn in a transaction, committing when fn returns nil
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
}

// PersonRepository handles person data operations
type PersonRepository interface {
	// Create inserts a new person; ErrDuplicate when the username or token is taken
	Create(ctx context.Context, person *models.Person) error

	// GetByID retrieves a person by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error)

	// GetByUsername retrieves a person by exact username
	GetByUsername(ctx context.Context, username string) (*models.Person, error)

	// GetByUsernameAndToken retrieves the person owning both username and token
	GetByUsernameAndToken(ctx context.Context, username string, token uuid.UUID) (*models.Person, error)

	// List retrieves all persons ordered by username
	List(ctx context.Context) ([]*models.Person, error)

	// Update writes username, email, password hash and permissions
	Update(ctx context.Context, person *models.Person) error

	// UpdateToken sets or clears the token and its issue time together
	UpdateToken(ctx context.Context, id uuid.UUID, token *uuid.UUID, issuedAt *time.Time) error

	// Delete deletes a person
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) PersonRepository
}

// AuditRepository handles audit log operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// List retrieves the most recent entries, newest first
	List(ctx context.Context, limit int) ([]*models.AuditLog, error)

	// ListByUsername retrieves the most recent entries for one account
	ListByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error)
}

// Repositories groups every repository
type Repositories struct {
	Persons PersonRepository
	Audit   AuditRepository
}
