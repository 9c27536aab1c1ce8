package handlers

import (
	"net/http"

	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

// ErrorHandler renders the fixed error endpoints and the router fallbacks.
// Every body has the same shape as an error emitted by the auth pipeline.
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new ErrorHandler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleUnauthorized handles GET /unauthorized
func (h *ErrorHandler) HandleUnauthorized(w http.ResponseWriter, r *http.Request) {
	h.logWriteError(utils.WriteUnauthorized(w, ""))
}

// HandleTokenExpired handles GET /token-expired
func (h *ErrorHandler) HandleTokenExpired(w http.ResponseWriter, r *http.Request) {
	h.logWriteError(utils.WriteErrorType(w, http.StatusUnauthorized, utils.TypeTokenExpired, "Token expired", nil))
}

// HandleForbidden handles GET /forbidden
func (h *ErrorHandler) HandleForbidden(w http.ResponseWriter, r *http.Request) {
	h.logWriteError(utils.WriteForbidden(w, ""))
}

// HandleNotFound handles GET /notFound and unmatched routes
func (h *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.logWriteError(utils.WriteNotFound(w, ""))
}

// HandleError handles GET /error
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request) {
	h.logWriteError(utils.WriteInternalServerError(w, "An internal error occurred"))
}

// HandleMethodNotAllowed answers a known path requested with the wrong method
func (h *ErrorHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.logWriteError(utils.WriteErrorType(w, http.StatusMethodNotAllowed, utils.TypeMethodNotAllowed, "Method not allowed", nil))
}

func (h *ErrorHandler) logWriteError(err error) {
	if err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
