package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/upb/tokengate/models"
)

func TestAuthorize(t *testing.T) {
	admin := Authenticated(newPrincipal("root", time.Now(), models.PermissionAdmin))
	user := Authenticated(newPrincipal("alice", time.Now(), models.PermissionUser))
	both := Authenticated(newPrincipal("bob", time.Now(), models.PermissionUser, models.PermissionAdmin))
	adminOnly := models.NewPermissionSet(models.PermissionAdmin)
	userOrAdmin := models.NewPermissionSet(models.PermissionUser, models.PermissionAdmin)

	tests := []struct {
		name     string
		outcome  Outcome
		required models.PermissionSet
		mode     Mode
		want     bool
	}{
		{"admin holds admin", admin, adminOnly, ModeAny, true},
		{"user lacks admin", user, adminOnly, ModeAny, false},
		{"any of user or admin", user, userOrAdmin, ModeAny, true},
		{"all of user and admin missing one", user, userOrAdmin, ModeAll, false},
		{"all of user and admin held", both, userOrAdmin, ModeAll, true},
		{"empty set under all allows", user, models.NewPermissionSet(), ModeAll, true},
		{"empty set under any denies", user, models.NewPermissionSet(), ModeAny, false},
		{"anonymous is denied", Anonymous(), adminOnly, ModeAny, false},
		{"anonymous is denied for empty all", Anonymous(), models.NewPermissionSet(), ModeAll, false},
		{"rejected is denied", Rejected(KindTokenExpired, "expired"), adminOnly, ModeAny, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.outcome, tt.required, tt.mode))
		})
	}
}
