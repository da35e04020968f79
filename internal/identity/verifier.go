// Package identity resolves bearer credentials against the external
// identity service. The service owns accounts and sessions; this package
// only asks it who a token belongs to.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the identity service rejects the
// credential. Transport and decode failures are reported as distinct errors
// so callers can fail closed with a 500 instead of a 401.
var ErrUnauthorized = errors.New("credential rejected")

// Principal is the authenticated caller as reported by the identity service.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier resolves a bearer token to a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// HTTPVerifier queries the identity service's userinfo endpoint over REST.
type HTTPVerifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPVerifier builds a verifier against the service's base URL. A nil
// client gets a 10 second timeout.
func NewHTTPVerifier(baseURL string, client *http.Client) (*HTTPVerifier, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("identity base URL required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPVerifier{baseURL: trimmed, httpClient: client}, nil
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	if strings.TrimSpace(token) == "" {
		return Principal{}, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/userinfo", nil)
	if err != nil {
		return Principal{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("query identity service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return Principal{}, ErrUnauthorized
	default:
		data, _ := io.ReadAll(resp.Body)
		return Principal{}, fmt.Errorf("identity service: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var principal Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return Principal{}, fmt.Errorf("decode identity response: %w", err)
	}
	if strings.TrimSpace(principal.ID) == "" {
		return Principal{}, fmt.Errorf("identity service returned no principal id")
	}
	return principal, nil
}

// TokenFingerprint returns a short stable digest of a credential for audit
// logs. The raw token never reaches a log line.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])[:12]
}
