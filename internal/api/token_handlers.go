package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"coursecast/internal/observability/logging"
)

// tokenLogPrefix returns the loggable prefix of an access token. Raw token
// values never reach a log line.
func tokenLogPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

// clientAddress extracts the originating client address from the proxy
// headers, falling back to the connection's remote address.
func clientAddress(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ValidateToken answers the reverse proxy's authentication subrequest for a
// streaming URL. Validity is decided entirely by the datastore routine; any
// call failure is treated as an invalid token rather than an internal error
// so a flaky database cannot open the stream to everyone.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	token := strings.TrimSpace(r.Header.Get("X-Access-Token"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	logger := logging.WithContext(r.Context(), h.Logger)
	if token == "" {
		h.recorder().ObserveTokenValidation("missing")
		writeError(w, http.StatusUnauthorized, fmt.Errorf("access token required"))
		return
	}

	clientIP := clientAddress(r)
	valid, err := h.Store.ValidateAccessToken(r.Context(), token, clientIP)
	if err != nil {
		h.recorder().ObserveTokenValidation("error")
		logger.Warn("token validation call failed",
			"token_prefix", tokenLogPrefix(token),
			"original_uri", r.Header.Get("X-Original-URI"),
			"error", err,
		)
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
		return
	}
	if !valid {
		h.recorder().ObserveTokenValidation("invalid")
		logger.Info("token rejected",
			"token_prefix", tokenLogPrefix(token),
			"original_uri", r.Header.Get("X-Original-URI"),
		)
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
		return
	}

	h.recorder().ObserveTokenValidation("valid")
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
