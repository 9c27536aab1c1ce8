package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/upb/tokengate/middleware"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/services"
	"github.com/upb/tokengate/services/person"
	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

// PersonResponse represents a person in API responses
type PersonResponse struct {
	PersonID      string               `json:"personId"`
	Username      string               `json:"username"`
	Email         string               `json:"email"`
	Permissions   models.PermissionSet `json:"permissions"`
	LoggedIn      bool                 `json:"loggedIn"`
	TokenIssuedAt string               `json:"tokenIssuedAt,omitempty"`
	CreatedAt     string               `json:"createdAt"`
	UpdatedAt     string               `json:"updatedAt"`
}

// PersonHandler handles administrative person management
type PersonHandler struct {
	persons PersonService
	logger  *zap.Logger
}

// NewPersonHandler creates a new PersonHandler
func NewPersonHandler(persons PersonService, logger *zap.Logger) *PersonHandler {
	return &PersonHandler{
		persons: persons,
		logger:  logger,
	}
}

// HandleCreateUser handles POST /create-user
func (h *PersonHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := bindRequest(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	p, err := h.persons.Create(r.Context(), person.CreateInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		Permissions: perms,
	})
	if err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, utils.TypePerson, createdUserResponse(p))
}

// HandleUpdateUser handles POST /update-user
func (h *PersonHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := bindRequest(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	id, err := utils.ParseUUID(req.PersonID, "personId")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if _, err := h.persons.Update(r.Context(), person.UpdateInput{
		ID:          id,
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Permissions: perms,
	}); err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, fmt.Sprintf("User %s updated successfully!", id))
}

// HandleDeleteUser handles DELETE /delete-user
func (h *PersonHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.PrincipalFromContext(ctx)
	if principal == nil {
		middleware.WriteServiceError(w, services.ErrAuthenticationRequired, h.logger)
		return
	}

	var req DeleteUserRequest
	if err := bindRequest(r, w, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	id, err := utils.ParseUUID(req.PersonID, "personId")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.persons.Delete(ctx, principal.ID, id); err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, fmt.Sprintf("User %s deleted successfully!", id))
}

// HandleListUsers handles GET /get-all-users and the admin user listing
func (h *PersonHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	persons, err := h.persons.List(r.Context())
	if err != nil {
		middleware.WriteServiceError(w, err, h.logger)
		return
	}

	responses := make([]PersonResponse, len(persons))
	for i, p := range persons {
		responses[i] = personToResponse(p)
	}

	_ = utils.WriteList(w, responses)
}

// HandleListPermissions handles GET /get-all-permissions
func (h *PersonHandler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteList(w, h.persons.ListPermissions())
}

func personToResponse(p *models.Person) PersonResponse {
	resp := PersonResponse{
		PersonID:    p.ID.String(),
		Username:    p.Username,
		Email:       p.Email,
		Permissions: p.Permissions,
		LoggedIn:    p.HasToken(),
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.TokenIssuedAt != nil {
		resp.TokenIssuedAt = p.TokenIssuedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
