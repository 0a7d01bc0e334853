package httputil

// Machine-readable error codes returned in ErrorResponse.Code
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"

	// Authentication
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeMissingAuth        = "MISSING_AUTH"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"

	// Registration and account changes
	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"
	CodePasswordRequired   = "PASSWORD_REQUIRED"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodePasswordTooLong    = "PASSWORD_TOO_LONG"
	CodeInvalidRole        = "INVALID_ROLE"
	CodeInvalidUserID      = "INVALID_USER_ID"

	// Single-use tokens
	CodeTokenRequired            = "TOKEN_REQUIRED"
	CodeInvalidVerificationToken = "INVALID_VERIFICATION_TOKEN"
	CodeInvalidResetToken        = "INVALID_RESET_TOKEN"
	CodeCooldownActive           = "COOLDOWN_ACTIVE"

	// Short URLs
	CodeInvalidURL         = "INVALID_URL"
	CodeURLTooLong         = "URL_TOO_LONG"
	CodeBlockedDomain      = "BLOCKED_DOMAIN"
	CodeCodeSpaceExhausted = "CODE_SPACE_EXHAUSTED"
	CodeInvalidURLID       = "INVALID_URL_ID"
	CodeInvalidPagination  = "INVALID_PAGINATION"
)
