package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, action, username, actor_id, resource_id, details, request_id, timestamp`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.Action,
		log.Username,
		nullUUID(log.ActorID),
		nullUUID(log.ResourceID),
		details,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// List retrieves the most recent audit logs
func (r *AuditRepository) List(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY timestamp DESC LIMIT $1`
	return r.queryAuditLogs(ctx, query, limit)
}

// ListByUsername retrieves the most recent audit logs of one account
func (r *AuditRepository) ListByUsername(ctx context.Context, username string, limit int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE username = $1 ORDER BY timestamp DESC LIMIT $2`
	return r.queryAuditLogs(ctx, query, username, limit)
}

func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var (
			log      models.AuditLog
			actor    uuid.NullUUID
			resource uuid.NullUUID
			details  []byte
		)
		if err := rows.Scan(
			&log.ID,
			&log.Action,
			&log.Username,
			&actor,
			&resource,
			&details,
			&log.RequestID,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if actor.Valid {
			log.WithActor(actor.UUID)
		}
		if resource.Valid {
			log.WithResource(resource.UUID)
		}
		if len(details) > 0 {
			log.Details = details
		}
		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}
