package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessCheck reports whether one backing service can take traffic
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// DatabaseCheck pings the account store and runs a trivial query on it
func DatabaseCheck(db *sql.DB) ReadinessCheck {
	return ReadinessCheck{
		Name: "database",
		Check: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		},
	}
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	checks []ReadinessCheck
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler. Without checks the
// service is always ready.
func NewHealthHandler(logger *zap.Logger, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
		now:    time.Now,
	}
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, utils.TypeHealth, HealthResponse{
		Status:    "healthy",
		Timestamp: h.timestamp(),
	})
}

// HandleReadiness handles GET /readyz. Every check runs; any failure
// turns the response into a 503.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	ready := true
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", c.Name), zap.Error(err))
			checks[c.Name] = "unhealthy"
			ready = false
			continue
		}
		checks[c.Name] = "healthy"
	}

	resp := HealthResponse{Status: "healthy", Timestamp: h.timestamp(), Checks: checks}
	status := http.StatusOK
	if !ready {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, status, utils.DataResponse{
		Type:    utils.TypeHealth,
		Data:    resp,
		Success: ready,
	}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
