package shorturl

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/go-shortener-api/internal/httputil"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
)

// Handler exposes short URL management and resolution over HTTP
type Handler struct {
	service *Service
	baseURL string
}

// NewHandler builds the handler. baseURL is the public redirect prefix that
// codes are appended to in create responses, and may be empty.
func NewHandler(service *Service, baseURL string) *Handler {
	return &Handler{service: service, baseURL: baseURL}
}

// CreateRequest represents the short URL creation body
type CreateRequest struct {
	OriginalURL string `json:"original_url"`
}

// CreateResponse is a stored mapping plus its public link
type CreateResponse struct {
	*ShortURL
	Link string `json:"short_url,omitempty"`
}

// ResolveResponse carries the destination of a code
type ResolveResponse struct {
	URL string `json:"url"`
}

// Create handles short URL creation
// @Summary      Shorten a URL
// @Tags         urls
// @Accept       json
// @Produce      json
// @Param        request body CreateRequest true "URL to shorten"
// @Success      201 {object} CreateResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid, blocked or too long URL"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      503 {object} httputil.ErrorResponse "No free short code"
// @Router       /api/v1/urls [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req CreateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger.Info("short url creation attempt", "ip", httputil.ClientIP(r), "user_agent", r.UserAgent())

	created, err := h.service.Create(r.Context(), req.OriginalURL)
	if err != nil {
		if !respondValidationError(w, err) {
			logger.Error("failed to create short url", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to create short url", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	resp := CreateResponse{ShortURL: created}
	if h.baseURL != "" {
		resp.Link = strings.TrimRight(h.baseURL, "/") + "/" + created.Code
	}
	httputil.RespondJSON(w, resp, http.StatusCreated)
}

// List returns a page of short URLs
// @Summary      List short URLs
// @Tags         urls
// @Produce      json
// @Param        skip  query int false "Offset"
// @Param        limit query int false "Page size (max 100)"
// @Success      200 {array}  ShortURL
// @Failure      400 {object} httputil.ErrorResponse "Invalid pagination"
// @Router       /api/v1/urls [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	skip, okSkip := httputil.QueryInt(r, "skip", 0)
	limit, okLimit := httputil.QueryInt(r, "limit", DefaultListLimit)
	if !okSkip || !okLimit {
		httputil.RespondErrorWithCode(w, "skip and limit must be non-negative integers", httputil.CodeInvalidPagination, http.StatusBadRequest)
		return
	}

	urls, err := h.service.List(r.Context(), skip, limit)
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to list short urls", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to list short urls", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	httputil.RespondJSON(w, urls, http.StatusOK)
}

// Get returns one short URL by id
// @Summary      Get a short URL
// @Tags         urls
// @Produce      json
// @Param        id path int true "Short URL ID"
// @Success      200 {object} ShortURL
// @Failure      404 {object} httputil.ErrorResponse "Not found"
// @Router       /api/v1/urls/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	httputil.RespondJSON(w, found, http.StatusOK)
}

// Delete removes a short URL by id
// @Summary      Delete a short URL
// @Tags         urls
// @Param        id path int true "Short URL ID"
// @Success      204
// @Failure      404 {object} httputil.ErrorResponse "Not found"
// @Router       /api/v1/urls/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r)
	if !ok {
		return
	}

	logging.GetLoggerFromContext(r.Context()).Info("short url deletion attempt", "id", id, "ip", httputil.ClientIP(r))

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondLookupError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Lookup resolves a code for script clients and counts the access
// @Summary      Resolve a short code
// @Tags         redirect
// @Produce      json
// @Param        code path string true "Short code"
// @Success      200 {object} ResolveResponse
// @Failure      403 {object} httputil.ErrorResponse "Destination is blocked"
// @Failure      404 {object} httputil.ErrorResponse "Unknown code"
// @Router       /r/api/url/{code} [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	resolved, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.RespondJSON(w, ResolveResponse{URL: resolved.OriginalURL}, http.StatusOK)
}

// Redirect sends the client to the destination of a code
// @Summary      Follow a short code
// @Tags         redirect
// @Param        code path string true "Short code"
// @Success      302
// @Failure      403 {object} httputil.ErrorResponse "Destination is blocked"
// @Failure      404 {object} httputil.ErrorResponse "Unknown code"
// @Router       /r/{code} [get]
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	resolved, ok := h.resolve(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, resolved.OriginalURL, http.StatusFound)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*ShortURL, bool) {
	logger := logging.GetLoggerFromContext(r.Context())
	code := chi.URLParam(r, "code")

	resolved, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlockedDomain):
			httputil.RespondErrorWithCode(w, "url blocked for security reasons", httputil.CodeBlockedDomain, http.StatusForbidden)
		case errors.Is(err, ErrNotFound):
			logger.Warn("unknown short code", "code", code, "ip", httputil.ClientIP(r))
			httputil.RespondErrorWithCode(w, "url not found", httputil.CodeNotFound, http.StatusNotFound)
		default:
			logger.Error("failed to resolve short code", "code", code, "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to resolve url", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return nil, false
	}
	return resolved, true
}

func (h *Handler) respondLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httputil.RespondErrorWithCode(w, "url not found", httputil.CodeNotFound, http.StatusNotFound)
		return
	}
	logging.GetLoggerFromContext(r.Context()).Error("short url lookup failed", "error", err.Error())
	httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
}

// respondValidationError writes the response for validation and allocation
// errors and reports whether err was one of them
func respondValidationError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, ErrURLTooLong):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeURLTooLong, http.StatusBadRequest)
	case errors.Is(err, ErrBlockedDomain):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeBlockedDomain, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidURL):
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidURL, http.StatusBadRequest)
	case errors.Is(err, ErrCodeSpaceExhausted):
		httputil.RespondErrorWithCode(w, "could not allocate a short code, please retry", httputil.CodeCodeSpaceExhausted, http.StatusServiceUnavailable)
	default:
		return false
	}
	return true
}

func urlID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondErrorWithCode(w, "invalid url id", httputil.CodeInvalidURLID, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
