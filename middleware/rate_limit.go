package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/upb/tokengate/services"
	"github.com/upb/tokengate/services/ratelimit"
	"go.uber.org/zap"
)

// RateLimitConfig configures RateLimitMiddleware
type RateLimitConfig struct {
	Limit      int
	Window     time.Duration
	KeyPrefix  string
	FailClosed bool
}

// RateLimitMiddleware throttles requests per client address
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	cfg     RateLimitConfig
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter ratelimit.Limiter, cfg RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Limit rejects requests with 429 once the client exceeds the configured budget
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.cfg.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := m.cfg.KeyPrefix + clientAddr(r)

		decision, err := m.limiter.Allow(ctx, key, m.cfg.Limit, m.cfg.Window)
		if errors.Is(err, ratelimit.ErrCapacityExceeded) {
			// capacity exhaustion rejects regardless of FailClosed
			m.logger.Warn("rate limiter at capacity",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("key", key))
			WriteServiceError(w, services.NewDomainError(services.ErrorTypeRateLimit, "Too many login attempts", err), m.logger)
			return
		}
		if err != nil {
			m.logger.Error("rate limiter unavailable",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.Error(err))
			if m.cfg.FailClosed {
				WriteServiceError(w, services.NewDomainError(services.ErrorTypeRateLimit, "Rate limiter unavailable", err), m.logger)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		writeRateLimitHeaders(w, decision)
		if !decision.Allowed {
			m.logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("key", key))
			rejected := services.NewDomainError(services.ErrorTypeRateLimit, "Too many login attempts", nil).
				WithDetail("reset_at", decision.ResetAt.UTC().Format(time.RFC3339))
			WriteServiceError(w, rejected, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, decision ratelimit.Decision) {
	if decision.Limit > 0 {
		w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		w.Header().Set("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}

// clientAddr strips the port from RemoteAddr. RealIP only rewrites it for
// requests relayed by a trusted proxy.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
