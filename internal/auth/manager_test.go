package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SourceBox-LLC/OpenS3-server/internal/config"
)

func TestVerifyCredentials(t *testing.T) {
	mgr := NewManager(config.AuthConfig{AccessKey: "admin", SecretKey: "password"})

	assert.True(t, mgr.VerifyCredentials("admin", "password"))
	assert.False(t, mgr.VerifyCredentials("admin", "wrong"))
	assert.False(t, mgr.VerifyCredentials("wrong", "password"))
	assert.False(t, mgr.VerifyCredentials("", ""))
}

func TestMiddleware(t *testing.T) {
	mgr := NewManager(config.AuthConfig{AccessKey: "admin", SecretKey: "password"}, "/health")

	handler := mgr.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("Valid credentials pass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
		req.SetBasicAuth("admin", "password")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Missing credentials are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	})

	t.Run("Wrong credentials are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
		req.SetBasicAuth("admin", "nope")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Exempt paths bypass auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
