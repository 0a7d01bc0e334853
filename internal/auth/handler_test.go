package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-shortener-api/internal/httputil"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/onetime"
	"github.com/redmonkez12/go-shortener-api/internal/ratelimit"
	"github.com/redmonkez12/go-shortener-api/internal/token"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

const strongPassword = "Passw0rd!"

type httpEnv struct {
	*testEnv
	router http.Handler
	redis  *miniredis.Miniredis
}

func newHTTPEnv(t *testing.T, opts ...ratelimit.Option) *httpEnv {
	t.Helper()

	env := newTestEnv(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client, "rl", opts...)
	h := NewHandler(env.svc, limiter, logging.NewNopLogger())
	mw := NewMiddleware(env.svc)

	r := chi.NewRouter()
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/password-reset/request", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
		r.Post("/email-verification/request", h.RequestEmailVerification)
		r.Post("/email-verification/confirm", h.ConfirmEmailVerification)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth)
			r.Get("/me", h.Me)
			r.Patch("/{id}", h.UpdateUser)
			r.With(RequireRole(user.RoleAdmin)).Get("/", h.ListUsers)
		})
	})

	return &httpEnv{testEnv: env, router: r, redis: mr}
}

func (e *httpEnv) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:1234"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *httpEnv) login(t *testing.T, email, pw string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Email: email, Password: pw}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var issued token.Issued
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&issued))
	assert.Equal(t, "Bearer", issued.TokenType)
	return issued.AccessToken
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

func TestRegisterLoginMeFlow(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/register", RegisterRequest{Email: "a@x.com", Password: strongPassword}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(t, http.MethodPost, "/api/v1/users/register", RegisterRequest{Email: "A@x.com", Password: strongPassword}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httputil.CodeEmailAlreadyExists, errorCode(t, rec))

	access := env.login(t, "a@x.com", strongPassword)

	rec = env.do(t, http.MethodGet, "/api/v1/users/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "a@x.com", me.Email)
	assert.False(t, me.IsVerified)
}

func TestHandlerRegisterValidation(t *testing.T) {
	env := newHTTPEnv(t)

	tests := []struct {
		name string
		req  RegisterRequest
		code string
	}{
		{"missing email", RegisterRequest{Password: strongPassword}, httputil.CodeEmailRequired},
		{"bad email", RegisterRequest{Email: "nope", Password: strongPassword}, httputil.CodeInvalidEmailFormat},
		{"missing password", RegisterRequest{Email: "a@x.com"}, httputil.CodePasswordRequired},
		{"weak password", RegisterRequest{Email: "a@x.com", Password: "password"}, httputil.CodeWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/users/register", tt.req, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestHandlerLoginFailuresAreUniform(t *testing.T) {
	env := newHTTPEnv(t)
	_, err := env.svc.Register(context.Background(), "a@x.com", strongPassword)
	require.NoError(t, err)

	for _, req := range []LoginRequest{
		{Email: "a@x.com", Password: "Wrong0ne!"},
		{Email: "nobody@x.com", Password: strongPassword},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/users/login", req, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid email or password","code":"INVALID_CREDENTIALS"}`, rec.Body.String())
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newHTTPEnv(t, ratelimit.WithPolicy(ratelimit.PurposeLogin, ratelimit.Policy{Limit: 2, Window: time.Minute}))

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Email: "a@x.com", Password: "x"}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Email: "a@x.com", Password: "x"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyRequests, errorCode(t, rec))
}

func TestRequireAuth(t *testing.T) {
	env := newHTTPEnv(t)
	_, err := env.svc.Register(context.Background(), "a@x.com", strongPassword)
	require.NoError(t, err)
	access := env.login(t, "a@x.com", strongPassword)

	rec := env.do(t, http.MethodGet, "/api/v1/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeMissingAuth, errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/v1/users/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeInvalidToken, errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Token "+access)
	raw := httptest.NewRecorder()
	env.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusUnauthorized, raw.Code)
	assert.Equal(t, httputil.CodeInvalidAuthHeader, errorCode(t, raw))

	env.now = env.now.Add(31 * time.Minute)
	rec = env.do(t, http.MethodGet, "/api/v1/users/me", nil, access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeTokenExpired, errorCode(t, rec))
}

func TestInactiveUserTokenRejected(t *testing.T) {
	ctx := context.Background()
	env := newHTTPEnv(t)
	u, err := env.svc.Register(ctx, "a@x.com", strongPassword)
	require.NoError(t, err)
	access := env.login(t, "a@x.com", strongPassword)

	inactive := false
	_, err = env.store.Update(ctx, u.ID, user.Update{IsActive: &inactive})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/v1/users/me", nil, access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeInvalidToken, errorCode(t, rec))
}

func TestEmailVerificationEndpoints(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/register", RegisterRequest{Email: "a@x.com", Password: strongPassword}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	first := env.notifier.LastToken("a@x.com", onetime.PurposeVerification)

	rec = env.do(t, http.MethodPost, "/api/v1/users/email-verification/request", EmailRequest{Email: "a@x.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := env.notifier.LastToken("a@x.com", onetime.PurposeVerification)
	require.NotEqual(t, first, second)

	// Only the newest token is valid
	rec = env.do(t, http.MethodPost, "/api/v1/users/email-verification/confirm", VerifyEmailRequest{Token: first}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidVerificationToken, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/users/email-verification/confirm", VerifyEmailRequest{Token: second}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users/email-verification/confirm", VerifyEmailRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeTokenRequired, errorCode(t, rec))
}

func TestEmailRequestCooldown(t *testing.T) {
	env := newHTTPEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/password-reset/request", EmailRequest{Email: "nobody@x.com"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users/password-reset/request", EmailRequest{Email: "Nobody@x.com"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeCooldownActive, errorCode(t, rec))

	env.redis.FastForward(ratelimit.EmailCooldown)
	rec = env.do(t, http.MethodPost, "/api/v1/users/password-reset/request", EmailRequest{Email: "nobody@x.com"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.notifier.Messages())
}

func TestPasswordResetEndpoints(t *testing.T) {
	ctx := context.Background()
	env := newHTTPEnv(t)
	_, err := env.svc.Register(ctx, "a@x.com", strongPassword)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/v1/users/password-reset/request", EmailRequest{Email: "a@x.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tok := env.notifier.LastToken("a@x.com", onetime.PurposeReset)
	require.NotEmpty(t, tok)

	rec = env.do(t, http.MethodPost, "/api/v1/users/password-reset/confirm", ResetPasswordRequest{Token: tok, NewPassword: "short"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeWeakPassword, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/users/password-reset/confirm", ResetPasswordRequest{Token: tok, NewPassword: "N3w-Passw0rd!"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/users/password-reset/confirm", ResetPasswordRequest{Token: tok, NewPassword: "N3w-Passw0rd!"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidResetToken, errorCode(t, rec))

	env.login(t, "a@x.com", "N3w-Passw0rd!")
}

func TestAdminEndpoints(t *testing.T) {
	ctx := context.Background()
	env := newHTTPEnv(t)

	require.NoError(t, env.svc.EnsureAdmin(ctx, "root@x.com", strongPassword))
	u, err := env.svc.Register(ctx, "a@x.com", strongPassword)
	require.NoError(t, err)

	adminToken := env.login(t, "root@x.com", strongPassword)
	userToken := env.login(t, "a@x.com", strongPassword)

	rec := env.do(t, http.MethodGet, "/api/v1/users/", nil, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/users/?role=admin", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []user.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "root@x.com", listed[0].Email)

	rec = env.do(t, http.MethodGet, "/api/v1/users/?role=owner", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidRole, errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/v1/users/?limit=abc", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	role := "admin"
	rec = env.do(t, http.MethodPatch, "/api/v1/users/"+u.ID.String(), UpdateUserRequest{Role: &role}, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/users/"+u.ID.String(), UpdateUserRequest{Role: &role}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated user.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, user.RoleAdmin, updated.Role)

	newPassword := "Self-Serv1ce!"
	rec = env.do(t, http.MethodPatch, "/api/v1/users/"+u.ID.String(), UpdateUserRequest{Password: &newPassword}, userToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/users/not-a-uuid", UpdateUserRequest{}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidUserID, errorCode(t, rec))
}
