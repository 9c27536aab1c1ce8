package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/repositories"
	"go.uber.org/zap"
)

const personColumns = `id, username, email, password_hash, token, token_issued_at, permissions, created_at, updated_at`

// uniqueViolation is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

// PersonRepository implements the repositories.PersonRepository interface
type PersonRepository struct {
	db     *DB
	tx     *Transaction
	logger *zap.Logger
}

// NewPersonRepository creates a new person repository
func NewPersonRepository(db *DB, logger *zap.Logger) repositories.PersonRepository {
	return &PersonRepository{
		db:     db,
		logger: logger,
	}
}

func (r *PersonRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		return r.tx.tx
	}
	return GetExecutor(ctx, r.db)
}

// Create creates a new person
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	query := `
		INSERT INTO persons (` + personColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		person.ID,
		person.Username,
		person.Email,
		person.PasswordHash,
		nullUUID(person.Token),
		nullTime(person.TokenIssuedAt),
		pq.Array(person.Permissions.Strings()),
		person.CreatedAt,
		person.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create person %q: %w", person.Username, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create person: %w", err)
	}

	r.logger.Debug("person created", zap.String("id", person.ID.String()), zap.String("username", person.Username))
	return nil
}

// GetByID retrieves a person by ID
func (r *PersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = $1`

	person, err := scanPerson(r.executor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapLookupError(err, "id", id.String())
	}
	return person, nil
}

// GetByUsername retrieves a person by username
func (r *PersonRepository) GetByUsername(ctx context.Context, username string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE username = $1`

	person, err := scanPerson(r.executor(ctx).QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, wrapLookupError(err, "username", username)
	}
	return person, nil
}

// GetByUsernameAndToken retrieves the person owning both username and token
func (r *PersonRepository) GetByUsernameAndToken(ctx context.Context, username string, token uuid.UUID) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE username = $1 AND token = $2`

	person, err := scanPerson(r.executor(ctx).QueryRowContext(ctx, query, username, token))
	if err != nil {
		// the token is never echoed into errors or logs
		return nil, wrapLookupError(err, "username", username)
	}
	return person, nil
}

// List retrieves all persons
func (r *PersonRepository) List(ctx context.Context) ([]*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons ORDER BY username`

	rows, err := r.executor(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer rows.Close()

	var persons []*models.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		persons = append(persons, person)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating person rows: %w", err)
	}

	return persons, nil
}

// Update updates a person's profile fields
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	query := `
		UPDATE persons
		SET username = $2,
		    email = $3,
		    password_hash = $4,
		    permissions = $5,
		    updated_at = $6
		WHERE id = $1
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		person.ID,
		person.Username,
		person.Email,
		person.PasswordHash,
		pq.Array(person.Permissions.Strings()),
		person.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to update person %q: %w", person.Username, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to update person: %w", err)
	}

	if err := expectAffected(result, person.ID); err != nil {
		return err
	}

	r.logger.Debug("person updated", zap.String("id", person.ID.String()))
	return nil
}

// UpdateToken sets or clears a person's token
func (r *PersonRepository) UpdateToken(ctx context.Context, id uuid.UUID, token *uuid.UUID, issuedAt *time.Time) error {
	if (token == nil) != (issuedAt == nil) {
		return fmt.Errorf("token and issue time must be set or cleared together")
	}

	query := `
		UPDATE persons
		SET token = $2,
		    token_issued_at = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.executor(ctx).ExecContext(ctx, query, id, nullUUID(token), nullTime(issuedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to update token: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to update token: %w", err)
	}

	if err := expectAffected(result, id); err != nil {
		return err
	}

	r.logger.Debug("person token updated", zap.String("id", id.String()), zap.Bool("cleared", token == nil))
	return nil
}

// Delete deletes a person
func (r *PersonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM persons WHERE id = $1`

	result, err := r.executor(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}

	if err := expectAffected(result, id); err != nil {
		return err
	}

	r.logger.Debug("person deleted", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *PersonRepository) WithTx(tx repositories.Transaction) repositories.PersonRepository {
	pgTx, _ := tx.(*Transaction)
	return &PersonRepository{
		db:     r.db,
		tx:     pgTx,
		logger: r.logger,
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPerson(row rowScanner) (*models.Person, error) {
	person := &models.Person{}
	var (
		token       uuid.NullUUID
		issuedAt    sql.NullTime
		permissions []string
	)

	err := row.Scan(
		&person.ID,
		&person.Username,
		&person.Email,
		&person.PasswordHash,
		&token,
		&issuedAt,
		pq.Array(&permissions),
		&person.CreatedAt,
		&person.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if token.Valid && issuedAt.Valid {
		person.SetToken(token.UUID, issuedAt.Time)
	}

	perms, err := models.ParsePermissionSet(permissions)
	if err != nil {
		return nil, fmt.Errorf("person %s has invalid permissions: %w", person.ID, err)
	}
	person.Permissions = perms

	return person, nil
}

func wrapLookupError(err error, field, value string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("person not found for %s %q: %w", field, value, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to get person: %w", err)
}

func expectAffected(result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("person not found: %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
