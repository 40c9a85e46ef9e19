package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"brigade/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID         string
	OrganizationID string
	SecurityLevel  int
}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(r *http.Request) (requestcontext.Principal, bool) {
	return requestcontext.CurrentPrincipal(r.Context())
}

func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, logger, r, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, logger, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, requestcontext.Principal{
				UserID:         claims.UserID,
				OrganizationID: claims.OrganizationID,
				SecurityLevel:  claims.SecurityLevel,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOrganization rejects requests whose {param} URL segment names an
// organization other than the caller's.
func RequireOrganization(param string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r)
			if !ok {
				writeJSONError(w, logger, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if orgID := chi.URLParam(r, param); orgID != principal.OrganizationID {
				logger.WarnContext(r.Context(), "cross-organization access denied",
					"request_id", GetRequestID(r.Context()),
					"user_id", principal.UserID,
					"organization_id", orgID,
				)
				writeJSONError(w, logger, r, http.StatusForbidden, "forbidden", "organization access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSecurityLevel admits callers whose clearance is at or above maxLevel.
// Lower levels are more privileged.
func RequireSecurityLevel(maxLevel int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r)
			if !ok {
				writeJSONError(w, logger, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if principal.SecurityLevel > maxLevel {
				writeJSONError(w, logger, r, http.StatusForbidden, "forbidden", "insufficient security level")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := `{"error":"` + code + `","error_description":"` + description + `"}`
	if _, err := w.Write([]byte(body)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write error response",
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
	}
}
