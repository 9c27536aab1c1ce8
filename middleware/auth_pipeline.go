package middleware

import (
	"context"
	"net/http"

	"github.com/upb/tokengate/internal/auth"
	"github.com/upb/tokengate/internal/routing"
	"github.com/upb/tokengate/models"
	"github.com/upb/tokengate/utils"
	"go.uber.org/zap"
)

// Classifier resolves the rule for a request
type Classifier interface {
	Classify(method, path string) routing.Rule
}

// Authenticator turns a credential into an outcome
type Authenticator interface {
	Authenticate(ctx context.Context, cred auth.Credential) (auth.Outcome, error)
}

// AuthPipeline classifies, authenticates and authorizes every request
// before it reaches a handler.
type AuthPipeline struct {
	classifier    Classifier
	authenticator Authenticator
	header        auth.Extractor
	cookie        auth.Extractor
	logger        *zap.Logger
}

// NewAuthPipeline creates a new AuthPipeline
func NewAuthPipeline(classifier Classifier, authenticator Authenticator, logger *zap.Logger) *AuthPipeline {
	return &AuthPipeline{
		classifier:    classifier,
		authenticator: authenticator,
		header:        auth.HeaderExtractor{},
		cookie:        auth.CookieExtractor{},
		logger:        logger,
	}
}

// Handler is the middleware entry point
func (p *AuthPipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		rule := p.classifier.Classify(r.Method, r.URL.Path)
		if rule.IsPublic() {
			next.ServeHTTP(w, r)
			return
		}

		cred, ok := p.extractorFor(rule).Extract(r)
		if !ok {
			p.logger.Debug("no credential on protected route",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("tier", rule.Tier.String()))
			WriteAuthError(w, auth.KindAuthenticationRequired, "", p.logger)
			return
		}

		outcome, err := p.authenticator.Authenticate(ctx, cred)
		if err != nil {
			p.logger.Error("authentication lookup failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			if werr := utils.WriteInternalServerError(w, "An internal error occurred"); werr != nil {
				p.logger.Error("failed to write internal error response", zap.Error(werr))
			}
			return
		}

		switch outcome.Status {
		case auth.StatusRejected:
			p.logger.Warn("credential rejected",
				zap.String("request_id", requestID),
				zap.String("kind", string(outcome.Kind)))
			WriteAuthError(w, outcome.Kind, outcome.Reason, p.logger)
			return
		case auth.StatusAnonymous:
			WriteAuthError(w, auth.KindAuthenticationRequired, "", p.logger)
			return
		}

		if rule.RequiresAuthorization() && !auth.Authorize(outcome, rule.Permissions, rule.Mode) {
			p.logger.Warn("insufficient permissions",
				zap.String("request_id", requestID),
				zap.String("username", outcome.Principal.Username),
				zap.Strings("required", rule.Permissions.Strings()),
				zap.Strings("held", outcome.Principal.Permissions.Strings()))
			WriteAuthError(w, auth.KindPermissionDenied, "", p.logger)
			return
		}

		p.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("username", outcome.Principal.Username))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, outcome.Principal)))
	})
}

// RequirePermissions guards a single operation. It expects the pipeline to
// have stored a principal and answers 401 or 403 itself otherwise.
func (p *AuthPipeline) RequirePermissions(mode auth.Mode, perms ...models.Permission) func(http.Handler) http.Handler {
	required := models.NewPermissionSet(perms...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal := PrincipalFromContext(ctx)
			if principal == nil {
				WriteAuthError(w, auth.KindAuthenticationRequired, "", p.logger)
				return
			}

			if !auth.Authorize(auth.Authenticated(principal), required, mode) {
				p.logger.Warn("insufficient permissions",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.String("username", principal.Username),
					zap.Strings("required", required.Strings()),
					zap.String("mode", mode.String()))
				WriteAuthError(w, auth.KindPermissionDenied, "", p.logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (p *AuthPipeline) extractorFor(rule routing.Rule) auth.Extractor {
	if rule.Source == routing.SourceCookie {
		return p.cookie
	}
	return p.header
}
