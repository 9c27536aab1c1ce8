package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tokengate/middleware"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/services"
	"github.com/upb/tokengate/services/person"
	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

// PersonService defines the account operations used by the handlers
type PersonService interface {
	Login(ctx context.Context, username, password string) (*person.LoginResult, error)
	Logout(ctx context.Context, id uuid.UUID) error
	Register(ctx context.Context, in person.RegisterInput) (*models.Person, error)
	Create(ctx context.Context, in person.CreateInput) (*models.Person, error)
	Update(ctx context.Context, in person.UpdateInput) (*models.Person, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
	List(ctx context.Context) ([]*models.Person, error)
	ListPermissions() []string
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	Type        string               `json:"type"`
	Success     bool                 `json:"success"`
	Token       uuid.UUID            `json:"token"`
	PersonID    uuid.UUID            `json:"personId"`
	Username    string               `json:"username"`
	Permissions models.PermissionSet `json:"permissions"`
	ExpiresAt   string               `json:"expiresAt"`
}

// CreatedUserResponse describes a newly created account
type CreatedUserResponse struct {
	PersonID    uuid.UUID            `json:"personId"`
	Username    string               `json:"username"`
	Email       string               `json:"email"`
	Token       *uuid.UUID           `json:"token,omitempty"`
	Permissions models.PermissionSet `json:"permissions"`
}

// PrincipalResponse describes the caller
type PrincipalResponse struct {
	PersonID       uuid.UUID            `json:"personId"`
	Username       string               `json:"username"`
	Permissions    models.PermissionSet `json:"permissions"`
	TokenExpiresAt string               `json:"tokenExpiresAt,omitempty"`
}

// AuthHandler handles login, logout, registration and the current principal
type AuthHandler struct {
	persons    PersonService
	expiration time.Duration
	logger     *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(persons PersonService, expiration time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		persons:    persons,
		expiration: expiration,
		logger:     logger,
	}
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := bindRequest(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.persons.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, LoginResponse{
		Type:        utils.TypeLogin,
		Success:     true,
		Token:       result.Token,
		PersonID:    result.PersonID,
		Username:    result.Username,
		Permissions: result.Permissions,
		ExpiresAt:   result.ExpiresAt.UTC().Format(time.RFC3339),
	}); err != nil {
		h.logger.Error("failed to write login response", zap.Error(err))
	}
}

// HandleLogout handles POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.PrincipalFromContext(ctx)
	if principal == nil {
		middleware.WriteServiceError(w, services.ErrAuthenticationRequired, h.logger)
		return
	}

	if err := h.persons.Logout(ctx, principal.ID); err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("logged out",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("person_id", principal.ID.String()))

	_ = utils.WriteMessage(w, "Successfully logged out!")
}

// HandleRegister handles POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := bindRequest(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	p, err := h.persons.Register(r.Context(), person.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, utils.TypePerson, createdUserResponse(p))
}

// HandleMe handles GET /me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		middleware.WriteServiceError(w, services.ErrAuthenticationRequired, h.logger)
		return
	}

	resp := PrincipalResponse{
		PersonID:    principal.ID,
		Username:    principal.Username,
		Permissions: principal.Permissions,
	}
	if expiresAt, ok := principal.ExpiresAt(h.expiration); ok {
		resp.TokenExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}

	_ = utils.WriteOK(w, utils.TypePerson, resp)
}

func createdUserResponse(p *models.Person) CreatedUserResponse {
	return CreatedUserResponse{
		PersonID:    p.ID,
		Username:    p.Username,
		Email:       p.Email,
		Token:       p.Token,
		Permissions: p.Permissions,
	}
}
