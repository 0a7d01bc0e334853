package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/redmonkez12/go-shortener-api/internal/httputil"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/token"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const UserContextKey ContextKey = "user"

// Authenticator resolves an access token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*user.User, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	auth Authenticator
}

func NewMiddleware(auth Authenticator) *Middleware {
	return &Middleware{auth: auth}
}

// RequireAuth validates the bearer token and stores the user in the context
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetLoggerFromContext(r.Context())

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
			return
		}
		scheme, accessToken, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || accessToken == "" {
			httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
			return
		}

		u, err := m.auth.Authenticate(r.Context(), accessToken)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
			case errors.Is(err, token.ErrInvalidSignature),
				errors.Is(err, token.ErrMalformed),
				errors.Is(err, ErrInvalidCredentials):
				httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			default:
				logger.Error("failed to authenticate request", "error", err)
				httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
			}
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, u)
		ctx = logging.WithLogger(ctx, logger.WithFields(map[string]any{"user_id": u.ID.String()}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects users that do not hold role. It must run after RequireAuth.
func RequireRole(role user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := GetUserFromContext(r.Context())
			if !user.HasRole(u, role) {
				httputil.RespondErrorWithCode(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	return u, ok
}
