package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/SourceBox-LLC/OpenS3-server/internal/config"
)

// Manager verifies requests against the single shared credential pair.
// Credentials are injected at construction so tests can swap them per
// instance.
type Manager interface {
	VerifyCredentials(accessKey, secretKey string) bool
	Middleware() func(http.Handler) http.Handler
}

type authManager struct {
	accessKey string
	secretKey string
	exempt    map[string]struct{}
}

// NewManager creates a new auth manager. The listed paths bypass
// authentication (health probes, metrics scrapes, the service banner).
func NewManager(cfg config.AuthConfig, exemptPaths ...string) Manager {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return &authManager{
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		exempt:    exempt,
	}
}

// VerifyCredentials compares the supplied pair in constant time to avoid
// leaking credential length or content through timing.
func (am *authManager) VerifyCredentials(accessKey, secretKey string) bool {
	accessOK := subtle.ConstantTimeCompare([]byte(accessKey), []byte(am.accessKey)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(secretKey), []byte(am.secretKey)) == 1
	return accessOK && secretOK
}

// Middleware returns an HTTP Basic authentication middleware
func (am *authManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := am.exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			accessKey, secretKey, ok := r.BasicAuth()
			if !ok || !am.VerifyCredentials(accessKey, secretKey) {
				logrus.WithFields(logrus.Fields{
					"method":    r.Method,
					"path":      r.URL.Path,
					"remote_ip": r.RemoteAddr,
				}).Warn("Authentication failed")

				w.Header().Set("WWW-Authenticate", `Basic realm="OpenS3"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail": "Authentication failed. Invalid access key or secret key."}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
