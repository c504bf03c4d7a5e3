package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SourceBox-LLC/OpenS3-server/internal/config"
	"github.com/SourceBox-LLC/OpenS3-server/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.Config{
		Listen:   ":0",
		DataDir:  dataDir,
		LogLevel: "error",
		Storage: storage.Config{
			Backend: "filesystem",
			Root:    filepath.Join(dataDir, "storage"),
		},
		Auth: config.AuthConfig{
			AccessKey: "admin",
			SecretKey: "password",
		},
		Metrics: config.MetricsConfig{Enable: true, Path: "/metrics"},
		Audit:   config.AuditConfig{Enable: true},
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.closeStores)
	return srv
}

func TestServerRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="OpenS3"`, rec.Header().Get("WWW-Authenticate"))
}

func TestServerAuthenticatedRequest(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewReader([]byte(`{"name": "docs"}`))
	req := httptest.NewRequest(http.MethodPost, "/buckets", body)
	req.SetBasicAuth("admin", "password")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServerExemptPaths(t *testing.T) {
	srv := newTestServer(t)

	for _, target := range []string{"/", "/health", "/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}
}

func TestServerMetricsScrape(t *testing.T) {
	srv := newTestServer(t)

	// Drive one instrumented request through the full chain.
	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	req.SetBasicAuth("admin", "password")
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	scrape := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, scrape)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opens3_http_requests_total")
}
