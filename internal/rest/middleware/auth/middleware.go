// Package auth provides bearer token authentication for the agent API.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Middleware rejects requests without the configured bearer token. An empty
// token disables authentication for loopback-only deployments.
type Middleware struct {
	token  string
	logger *zap.Logger
}

// New creates a new auth middleware.
func New(token string, logger *zap.Logger) *Middleware {
	return &Middleware{
		token:  token,
		logger: logger,
	}
}

// AsRESTMiddleware returns a bunrouter middleware handler enforcing the
// bearer token.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if m.token == "" {
			return next(w, req)
		}

		header := req.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			m.logger.Warn("Rejected request with invalid token",
				zap.String("path", req.URL.Path),
				zap.String("remoteAddr", req.RemoteAddr))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return nil
		}

		return next(w, req)
	}
}
