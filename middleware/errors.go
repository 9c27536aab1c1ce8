package middleware

import (
	"net/http"

	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/services"
	"go.uber.org/zap"
)

const (
	msgAuthenticationFailed   = "Authentication failed!"
	msgInsufficientPrivileges = "Insufficient Privileges!"
	msgTokenExpired           = "Token expired"
)

// AuthError converts a rejection kind into the domain error answered to the client.
// A malformed credential is reported exactly like an invalid one, and only
// expiry carries its own reason.
func AuthError(kind auth.ErrorKind, reason string) *services.DomainError {
	switch kind {
	case auth.KindAuthenticationRequired:
		return services.NewDomainError(services.ErrorTypeAuthenticationRequired, msgAuthenticationFailed, nil)
	case auth.KindTokenExpired:
		if reason == "" {
			reason = msgTokenExpired
		}
		return services.NewDomainError(services.ErrorTypeTokenExpired, reason, nil)
	case auth.KindPermissionDenied:
		return services.NewDomainError(services.ErrorTypeForbidden, msgInsufficientPrivileges, nil)
	default:
		return services.NewDomainError(services.ErrorTypeInvalidCredentials, msgAuthenticationFailed, nil)
	}
}

// WriteAuthError writes the JSON body for a rejected request
func WriteAuthError(w http.ResponseWriter, kind auth.ErrorKind, reason string, logger *zap.Logger) {
	WriteServiceError(w, AuthError(kind, reason), logger)
}
