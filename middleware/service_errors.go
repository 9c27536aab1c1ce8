package middleware

import (
	"net/http"

	"github.com/upb/tokengate/services"
	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

// WriteServiceError maps domain errors to HTTP responses. Handlers and the
// request pipeline both answer through it.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var writeErr error
	switch services.GetErrorType(err) {
	case services.ErrorTypeNotFound:
		writeErr = utils.WriteNotFound(w, message)

	case services.ErrorTypeValidation:
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.ErrorTypeUnauthorized:
		// failed login or logout, distinct from a rejected credential
		writeErr = utils.WriteErrorType(w, http.StatusUnauthorized, utils.TypeAuthFailed, message, nil)

	case services.ErrorTypeAuthenticationRequired:
		writeErr = utils.WriteErrorType(w, http.StatusUnauthorized, utils.TypeAuthenticationRequired, message, nil)

	case services.ErrorTypeInvalidCredentials:
		writeErr = utils.WriteErrorType(w, http.StatusUnauthorized, utils.TypeInvalidCredentials, message, nil)

	case services.ErrorTypeTokenExpired:
		writeErr = utils.WriteErrorType(w, http.StatusUnauthorized, utils.TypeTokenExpired, message, nil)

	case services.ErrorTypeForbidden:
		writeErr = utils.WriteForbidden(w, message)

	case services.ErrorTypeRateLimit:
		writeErr = utils.WriteTooManyRequests(w, message, details)

	case services.ErrorTypeConflict:
		writeErr = utils.WriteConflict(w, message, details)

	case services.ErrorTypeInternal:
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
