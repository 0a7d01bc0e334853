package shorturl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-shortener-api/internal/httputil"
)

func newTestRouter(t *testing.T, store *memStore) http.Handler {
	t.Helper()
	h := NewHandler(newTestService(t, store, nil), "https://sho.rt/r/")

	r := chi.NewRouter()
	r.Route("/api/v1/urls", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	})
	r.Get("/r/api/url/{code}", h.Lookup)
	r.Get("/r/{code}", h.Redirect)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decodeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

func TestHandlerCreateAndResolve(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/urls", CreateRequest{OriginalURL: "https://example.com/a"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID          int64  `json:"id"`
		Code        string `json:"short_code"`
		OriginalURL string `json:"original_url"`
		Link        string `json:"short_url"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "https://example.com/a", created.OriginalURL)
	assert.Equal(t, "https://sho.rt/r/"+created.Code, created.Link)

	rec = doJSON(t, router, http.MethodGet, "/r/api/url/"+created.Code, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://example.com/a"}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/r/"+created.Code, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/a", rec.Header().Get("Location"))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/urls/"+strconv.FormatInt(created.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched ShortURL
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fetched))
	assert.EqualValues(t, 2, fetched.AccessCount)
}

func TestHandlerCreateValidation(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"bad scheme", CreateRequest{OriginalURL: "ftp://example.com"}, http.StatusBadRequest, httputil.CodeInvalidURL},
		{"blocked", CreateRequest{OriginalURL: "https://phishing.com/login"}, http.StatusBadRequest, httputil.CodeBlockedDomain},
		{"unknown field", map[string]string{"url": "https://example.com"}, http.StatusBadRequest, httputil.CodeInvalidRequestBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/urls", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeCode(t, rec))
		})
	}
}

func TestHandlerCodeSpaceExhausted(t *testing.T) {
	store := newMemStore()
	_, err := store.Create(context.Background(), "AAAAAA", "https://taken.example")
	require.NoError(t, err)

	h := NewHandler(newTestService(t, store, &fixedGenerator{code: "AAAAAA"}), "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls", bytes.NewBufferString(`{"original_url":"https://example.com"}`))
	h.Create(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, httputil.CodeCodeSpaceExhausted, decodeCode(t, rec))
}

func TestHandlerResolveErrors(t *testing.T) {
	store := newMemStore()
	_, err := store.Create(context.Background(), "Bad123", "https://malware.com/x")
	require.NoError(t, err)
	router := newTestRouter(t, store)

	rec := doJSON(t, router, http.MethodGet, "/r/api/url/Bad123", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodeBlockedDomain, decodeCode(t, rec))

	rec = doJSON(t, router, http.MethodGet, "/r/nope00", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListGetDelete(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/urls", CreateRequest{OriginalURL: "https://example.com"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/urls?skip=1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []ShortURL
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page, 1)
	assert.EqualValues(t, 2, page[0].ID)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/urls?limit=-5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidPagination, decodeCode(t, rec))

	rec = doJSON(t, router, http.MethodGet, "/api/v1/urls/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidURLID, decodeCode(t, rec))

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/urls/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/urls/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/urls/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
