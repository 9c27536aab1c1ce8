package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/utils"
)

// maxBodyBytes caps request bodies read by the handlers
const maxBodyBytes = 1 << 20

// formBinder is implemented by requests that can be filled from form values
type formBinder interface {
	bindForm(values url.Values)
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

func (r *LoginRequest) bindForm(v url.Values) {
	r.Username = v.Get("username")
	r.Password = v.Get("password")
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Username string `json:"username" form:"username" validate:"required,username"`
	Password string `json:"password" form:"password" validate:"required,max=72"`
	Email    string `json:"email" form:"email" validate:"required,email"`
}

func (r *RegisterRequest) bindForm(v url.Values) {
	r.Username = v.Get("username")
	r.Password = v.Get("password")
	r.Email = v.Get("email")
}

// CreateUserRequest is the body of POST /create-user
type CreateUserRequest struct {
	Username    string   `json:"username" form:"username" validate:"required,username"`
	Password    string   `json:"password" form:"password" validate:"required,max=72"`
	Email       string   `json:"email" form:"email" validate:"required,email"`
	Permissions []string `json:"permissions" form:"permissions" validate:"omitempty,dive,permission"`
}

func (r *CreateUserRequest) bindForm(v url.Values) {
	r.Username = v.Get("username")
	r.Password = v.Get("password")
	r.Email = v.Get("email")
	r.Permissions = splitValues(v["permissions"])
}

// UpdateUserRequest is the body of POST /update-user. Absent fields stay unchanged.
type UpdateUserRequest struct {
	PersonID    string   `json:"personId" form:"personId" validate:"required,uuid"`
	Username    *string  `json:"username,omitempty" form:"username" validate:"omitempty,username"`
	Email       *string  `json:"email,omitempty" form:"email" validate:"omitempty,email"`
	Password    *string  `json:"password,omitempty" form:"password" validate:"omitempty,max=72"`
	Permissions []string `json:"permissions,omitempty" form:"permissions" validate:"omitempty,dive,permission"`
}

func (r *UpdateUserRequest) bindForm(v url.Values) {
	r.PersonID = v.Get("personId")
	r.Username = optionalValue(v, "username")
	r.Email = optionalValue(v, "email")
	r.Password = optionalValue(v, "password")
	r.Permissions = splitValues(v["permissions"])
}

// DeleteUserRequest identifies the person removed by DELETE /delete-user
type DeleteUserRequest struct {
	PersonID string `json:"personId" form:"personId" validate:"required,uuid"`
}

func (r *DeleteUserRequest) bindForm(v url.Values) {
	r.PersonID = v.Get("personId")
}

// bindRequest fills dst from a JSON body or from form and query values, then validates it
func bindRequest(r *http.Request, w http.ResponseWriter, dst formBinder) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		dst.bindForm(r.Form)
	}

	return utils.ValidateStruct(dst)
}

var jsonMediaType = contenttype.NewMediaType("application/json")

func isJSON(r *http.Request) bool {
	ctype, err := contenttype.GetMediaType(r)
	return err == nil && ctype.Matches(jsonMediaType)
}

// splitValues flattens repeated and comma separated values
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func optionalValue(v url.Values, key string) *string {
	if _, ok := v[key]; !ok {
		return nil
	}
	value := v.Get(key)
	return &value
}

// parsePermissions converts validated names to a set; nil when names is empty
func parsePermissions(names []string) (models.PermissionSet, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return models.ParsePermissionSet(names)
}
