package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of account event being audited
type AuditAction string

const (
	AuditActionLoginSucceeded AuditAction = "login_succeeded"
	AuditActionLoginFailed    AuditAction = "login_failed"
	AuditActionLogout         AuditAction = "logout"
	AuditActionRegistered     AuditAction = "registered"
	AuditActionPersonCreated  AuditAction = "person_created"
	AuditActionPersonUpdated  AuditAction = "person_updated"
	AuditActionPersonDeleted  AuditAction = "person_deleted"
)

// AuditLog represents an audit trail entry. Tokens and passwords are never recorded.
type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Action     AuditAction     `json:"action" db:"action"`
	Username   string          `json:"username,omitempty" db:"username"`
	ActorID    *uuid.UUID      `json:"actorId,omitempty" db:"actor_id"`
	ResourceID *uuid.UUID      `json:"resourceId,omitempty" db:"resource_id"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
	RequestID  string          `json:"requestId,omitempty" db:"request_id"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// NewAuditLog creates a new AuditLog for the given account
func NewAuditLog(action AuditAction, username string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// WithActor sets the person who performed the action
func (a *AuditLog) WithActor(actorID uuid.UUID) *AuditLog {
	a.ActorID = &actorID
	return a
}

// WithResource sets the person the action was applied to
func (a *AuditLog) WithResource(resourceID uuid.UUID) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets the request id
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}
