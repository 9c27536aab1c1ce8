package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/repositories"
	"go.uber.org/zap"
)

var personRowColumns = []string{
	"id", "username", "email", "password_hash", "token", "token_issued_at", "permissions", "created_at", "updated_at",
}

func newMockRepository(t *testing.T) (*PersonRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := &DB{DB: sqlDB, logger: zap.NewNop()}
	repo := NewPersonRepository(db, zap.NewNop()).(*PersonRepository)
	return repo, mock
}

func TestPersonRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts person", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		person := models.NewPerson("alice", "alice@example.com", "hash", models.DefaultPermissions())

		mock.ExpectExec("INSERT INTO persons").
			WithArgs(person.ID, "alice", "alice@example.com", "hash",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, person))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation to ErrDuplicate", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		person := models.NewPerson("alice", "alice@example.com", "hash", nil)

		mock.ExpectExec("INSERT INTO persons").
			WillReturnError(&pq.Error{Code: uniqueViolation})

		err := repo.Create(ctx, person)
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps other errors", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		person := models.NewPerson("alice", "alice@example.com", "hash", nil)

		mock.ExpectExec("INSERT INTO persons").WillReturnError(sql.ErrConnDone)

		err := repo.Create(ctx, person)
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NotErrorIs(t, err, repositories.ErrDuplicate)
	})
}

func TestPersonRepository_GetByUsernameAndToken(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	token := uuid.New()
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns person with token and permissions", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		rows := sqlmock.NewRows(personRowColumns).
			AddRow(id.String(), "alice", "alice@example.com", "hash", token.String(), issued, "{ADMIN,USER}", issued, issued)
		mock.ExpectQuery("SELECT (.+) FROM persons WHERE username = \\$1 AND token = \\$2").
			WithArgs("alice", token).
			WillReturnRows(rows)

		person, err := repo.GetByUsernameAndToken(ctx, "alice", token)
		require.NoError(t, err)
		assert.Equal(t, id, person.ID)
		assert.Equal(t, "alice", person.Username)
		require.True(t, person.HasToken())
		assert.Equal(t, token, *person.Token)
		assert.True(t, person.TokenIssuedAt.Equal(issued))
		assert.True(t, person.Permissions.Has(models.PermissionAdmin))
		assert.True(t, person.Permissions.Has(models.PermissionUser))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when no row matches", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery("SELECT (.+) FROM persons").
			WithArgs("alice", token).
			WillReturnError(sql.ErrNoRows)

		person, err := repo.GetByUsernameAndToken(ctx, "alice", token)
		assert.Nil(t, person)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NotContains(t, err.Error(), token.String())
	})

	t.Run("rejects unknown permission names", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		rows := sqlmock.NewRows(personRowColumns).
			AddRow(id.String(), "alice", "alice@example.com", "hash", token.String(), issued, "{ROOT}", issued, issued)
		mock.ExpectQuery("SELECT (.+) FROM persons").WillReturnRows(rows)

		_, err := repo.GetByUsernameAndToken(ctx, "alice", token)
		assert.Error(t, err)
	})
}

func TestPersonRepository_GetByUsername_WithoutToken(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(personRowColumns).
		AddRow(id.String(), "bob", "bob@example.com", "hash", nil, nil, "{USER}", now, now)
	mock.ExpectQuery("SELECT (.+) FROM persons WHERE username = \\$1").
		WithArgs("bob").
		WillReturnRows(rows)

	person, err := repo.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, person.HasToken())
	assert.Nil(t, person.TokenIssuedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepository_List(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	rows := sqlmock.NewRows(personRowColumns).
		AddRow(uuid.New().String(), "Admin", "admin@example.com", "hash", nil, nil, "{ADMIN}", now, now).
		AddRow(uuid.New().String(), "alice", "alice@example.com", "hash", nil, nil, "{USER}", now, now)
	mock.ExpectQuery("SELECT (.+) FROM persons ORDER BY username").WillReturnRows(rows)

	persons, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, persons, 2)
	assert.Equal(t, "Admin", persons[0].Username)
	assert.True(t, persons[0].Permissions.Has(models.PermissionAdmin))
	assert.False(t, persons[1].Permissions.Has(models.PermissionAdmin))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepository_UpdateToken(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("sets token and issue time", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		token := uuid.New()
		issued := time.Now()

		mock.ExpectExec("UPDATE persons").
			WithArgs(id, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateToken(ctx, id, &token, &issued))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clears token and issue time", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec("UPDATE persons").
			WithArgs(id, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateToken(ctx, id, nil, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses a token without issue time", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		token := uuid.New()

		err := repo.UpdateToken(ctx, id, &token, nil)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when nothing updated", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec("UPDATE persons").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateToken(ctx, id, nil, nil)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestPersonRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("update maps unique violation", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		person := models.NewPerson("taken", "x@example.com", "hash", nil)

		mock.ExpectExec("UPDATE persons").WillReturnError(&pq.Error{Code: uniqueViolation})

		err := repo.Update(ctx, person)
		assert.ErrorIs(t, err, repositories.ErrDuplicate)
	})

	t.Run("delete removes row", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		id := uuid.New()

		mock.ExpectExec("DELETE FROM persons WHERE id = \\$1").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete of missing row returns ErrNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec("DELETE FROM persons").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(ctx, uuid.New())
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestPersonRepository_WithTx(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := &DB{DB: sqlDB, logger: zap.NewNop()}
	tm := NewTransactionManager(db, zap.NewNop())
	repo := NewPersonRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM persons").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		return repo.WithTx(tx).Delete(ctx, uuid.New())
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_InTransaction(t *testing.T) {
	t.Run("context carries the transaction", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		db := &DB{DB: sqlDB, logger: zap.NewNop()}
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewPersonRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM persons").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
			return repo.Delete(ctx, uuid.New())
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		db := &DB{DB: sqlDB, logger: zap.NewNop()}
		tm := NewTransactionManager(db, zap.NewNop())
		repo := NewPersonRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM persons").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
			return repo.Delete(ctx, uuid.New())
		})
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		tm := NewTransactionManager(&DB{DB: sqlDB, logger: zap.NewNop()}, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
				panic("boom")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer sqlDB.Close()

		tm := NewTransactionManager(&DB{DB: sqlDB, logger: zap.NewNop()}, zap.NewNop())
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err = tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorContains(t, err, "failed to begin transaction")
	})
}
