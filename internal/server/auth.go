package server

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/core"
)

// apiKeyFromRequest extracts the caller's api key from the X-API-Key header
// or a Bearer authorization header. X-API-Key wins when both are present.
func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// authenticate resolves the request's api key to its owning user. A missing
// and an unknown key both yield a 401 to the caller; the distinction is only
// logged.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*core.User, bool) {
	key := apiKeyFromRequest(r)
	if key == "" {
		s.logger.Warn("API request without key", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "API key required")
		return nil, false
	}

	user, err := s.creds.Resolve(r.Context(), key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("Invalid API key attempt", zap.String("remote_addr", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return nil, false
		}
		s.logger.Error("Failed to resolve api key", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return user, true
}

// clientIP strips the port from the peer address. The service is expected to
// terminate TLS at a proxy, but the peer address is still recorded as seen.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
