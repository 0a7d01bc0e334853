package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/httputil"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/password"
	"github.com/redmonkez12/go-shortener-api/internal/ratelimit"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// RateLimiter is the subset of ratelimit.Limiter the handlers use
type RateLimiter interface {
	CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error)
	RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error
	CheckIPRateLimit(ctx context.Context, ip string) (bool, error)
	RecordIPRequest(ctx context.Context, ip string) error
	CheckEmailCooldown(ctx context.Context, email string) (bool, error)
	SetEmailCooldown(ctx context.Context, email string) error
}

// Handler contains HTTP handlers for account endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
	logger      *logging.Logger
}

func NewHandler(service *Service, rateLimiter RateLimiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	User    *user.User `json:"user"`
	Message string     `json:"message"`
}

// EmailRequest carries the address for verification and reset requests
type EmailRequest struct {
	Email string `json:"email"`
}

// VerifyEmailRequest represents the email verification confirmation
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// UpdateUserRequest is a partial account update. Omitted fields are unchanged.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new user account with email and password. A verification email will be sent.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration credentials"
// @Success      201 {object} RegisterResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/v1/users/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.checkPurpose(w, r, ratelimit.PurposeRegister) {
		return
	}

	var req RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if req.Email == "" {
		httputil.RespondErrorWithCode(w, "email is required", httputil.CodeEmailRequired, http.StatusBadRequest)
		return
	}
	if !respondPasswordError(w, req.Password) {
		return
	}

	newUser, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			logger.Warn("registration failed: email already exists")
			httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrInvalidEmail):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		case errors.Is(err, password.ErrPasswordTooLong):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodePasswordTooLong, http.StatusBadRequest)
		default:
			logger.Error("registration failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered", "user_id", newUser.ID)

	httputil.RespondJSON(w, RegisterResponse{
		User:    newUser,
		Message: "registration successful, please check your email to verify your account",
	}, http.StatusCreated)
}

// Login handles user login
// @Summary      Log in
// @Description  Exchange email and password for a bearer access token
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} token.Issued
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/v1/users/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if !h.checkPurpose(w, r, ratelimit.PurposeLogin) {
		return
	}

	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	issued, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			httputil.RespondErrorWithCode(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in successfully")
	httputil.RespondJSON(w, issued, http.StatusOK)
}

// Me returns the authenticated user
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} user.User
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /api/v1/users/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := GetUserFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}
	httputil.RespondJSON(w, u, http.StatusOK)
}

// ListUsers returns accounts for administrators
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        skip  query int    false "Offset"
// @Param        limit query int    false "Page size (max 100)"
// @Param        email query string false "Email substring"
// @Param        role  query string false "Exact role"
// @Success      200 {array}  user.User
// @Failure      400 {object} httputil.ErrorResponse "Invalid filter"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Router       /api/v1/users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	actor, _ := GetUserFromContext(r.Context())

	skip, okSkip := httputil.QueryInt(r, "skip", 0)
	limit, okLimit := httputil.QueryInt(r, "limit", user.MaxListLimit)
	if !okSkip || !okLimit {
		httputil.RespondErrorWithCode(w, "skip and limit must be non-negative integers", httputil.CodeInvalidPagination, http.StatusBadRequest)
		return
	}

	f := user.Filter{
		Email:  r.URL.Query().Get("email"),
		Offset: skip,
		Limit:  limit,
	}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, err := user.ParseRole(raw)
		if err != nil {
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidRole, http.StatusBadRequest)
			return
		}
		f.Role = role
	}

	users, err := h.service.ListUsers(r.Context(), actor, f)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			httputil.RespondErrorWithCode(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
			return
		}
		logger.Error("failed to list users", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to list users", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, users, http.StatusOK)
}

// UpdateUser applies a partial update to an account
// @Summary      Update user
// @Description  Administrators may change any field. Other users may only change their own password.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path string            true "User ID"
// @Param        request body UpdateUserRequest true "Fields to change"
// @Success      200 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      403 {object} httputil.ErrorResponse "Forbidden"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Router       /api/v1/users/{id} [patch]
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	actor, _ := GetUserFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid user id", httputil.CodeInvalidUserID, http.StatusBadRequest)
		return
	}

	var req UpdateUserRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	patch := UserPatch{Email: req.Email, Password: req.Password, IsActive: req.IsActive}
	if req.Password != nil && !respondPasswordError(w, *req.Password) {
		return
	}
	if req.Role != nil {
		role, err := user.ParseRole(*req.Role)
		if err != nil {
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidRole, http.StatusBadRequest)
			return
		}
		patch.Role = &role
	}

	updated, err := h.service.UpdateUser(r.Context(), actor, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			httputil.RespondErrorWithCode(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
		case errors.Is(err, user.ErrNotFound):
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeNotFound, http.StatusNotFound)
		case errors.Is(err, ErrEmailTaken):
			httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrInvalidEmail):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		default:
			logger.Error("failed to update user", "target_id", id, "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to update user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user updated", "target_id", id)
	httputil.RespondJSON(w, updated, http.StatusOK)
}

// RequestPasswordReset handles password reset requests
// @Summary      Request password reset
// @Description  Send a password reset link. The response is the same whether or not the email exists.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/v1/users/password-reset/request [post]
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	email, ok := h.emailRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), email); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("password reset request failed", "error", err.Error())
	}

	httputil.RespondJSON(w, MessageResponse{
		Message: "if an account exists with this email, a password reset link has been sent",
	}, http.StatusOK)
}

// ConfirmPasswordReset handles the password reset confirmation
// @Summary      Confirm password reset
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Reset token and new password"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token, or weak password"
// @Router       /api/v1/users/password-reset/confirm [post]
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		httputil.RespondErrorWithCode(w, "token is required", httputil.CodeTokenRequired, http.StatusBadRequest)
		return
	}
	if !respondPasswordError(w, req.NewPassword) {
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			logger.Warn("password reset failed: invalid token")
			httputil.RespondErrorWithCode(w, "invalid or expired reset token", httputil.CodeInvalidResetToken, http.StatusBadRequest)
			return
		}
		logger.Error("password reset failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to reset password", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, MessageResponse{Message: "password has been reset"}, http.StatusOK)
}

// RequestEmailVerification resends the verification link
// @Summary      Resend verification email
// @Description  The response is the same whether or not the email exists or is already verified.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/v1/users/email-verification/request [post]
func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	email, ok := h.emailRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), email); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("verification request failed", "error", err.Error())
	}

	httputil.RespondJSON(w, MessageResponse{
		Message: "if an unverified account exists with this email, a verification link has been sent",
	}, http.StatusOK)
}

// ConfirmEmailVerification consumes a verification token
// @Summary      Verify email
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body VerifyEmailRequest true "Verification token"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token"
// @Router       /api/v1/users/email-verification/confirm [post]
func (h *Handler) ConfirmEmailVerification(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyEmailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		httputil.RespondErrorWithCode(w, "token is required", httputil.CodeTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			logger.Warn("email verification failed: invalid token")
			httputil.RespondErrorWithCode(w, "invalid or expired verification token", httputil.CodeInvalidVerificationToken, http.StatusBadRequest)
			return
		}
		logger.Error("email verification failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to verify email", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, MessageResponse{Message: "email verified successfully"}, http.StatusOK)
}

// checkPurpose applies the IP budget for purpose and counts the request.
// Limiter failures let the request through.
func (h *Handler) checkPurpose(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())
	ip := httputil.ClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "purpose", purpose, "ip", ip)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return true
}

// emailRequest decodes an EmailRequest and applies the shared IP budget and
// the per-address cooldown of the email-sending endpoints
func (h *Handler) emailRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return "", false
	}
	if req.Email == "" {
		httputil.RespondErrorWithCode(w, "email is required", httputil.CodeEmailRequired, http.StatusBadRequest)
		return "", false
	}

	cooldownKey := req.Email
	if normalized, err := NormalizeEmail(req.Email); err == nil {
		cooldownKey = normalized
	}

	ip := httputil.ClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for email request", "ip", ip)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return "", false
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), cooldownKey)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		httputil.RespondErrorWithCode(w, "please wait before requesting another email", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return "", false
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	if err := h.rateLimiter.SetEmailCooldown(r.Context(), cooldownKey); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	return req.Email, true
}

// respondPasswordError writes a 400 for passwords that fail the strength
// rules and reports whether the password is acceptable
func respondPasswordError(w http.ResponseWriter, pw string) bool {
	if pw == "" {
		httputil.RespondErrorWithCode(w, "password is required", httputil.CodePasswordRequired, http.StatusBadRequest)
		return false
	}
	err := password.Validate(pw)
	switch {
	case err == nil:
		return true
	case errors.Is(err, password.ErrPasswordTooLong):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodePasswordTooLong, http.StatusBadRequest)
	default:
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeWeakPassword, http.StatusBadRequest)
	}
	return false
}
