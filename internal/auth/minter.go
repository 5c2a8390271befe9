package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Workspace tokens nominally live 60 minutes; we treat them as expired
	// after 55 so a token is never handed out moments before it dies.
	tokenLifetime     = 55 * time.Minute
	refreshMargin     = 5 * time.Minute
	tokenFetchTimeout = 10 * time.Second
)

// TokenMinter holds an OAuth client-credentials token for the workspace and
// refreshes it on demand. Safe for concurrent use; concurrent callers that
// all see an expired token collapse into a single refresh request.
type TokenMinter struct {
	clientID     string
	clientSecret string
	host         string
	httpClient   *http.Client

	mu     sync.RWMutex
	token  string
	expiry time.Time

	now func() time.Time
}

// NewTokenMinter creates a minter for the given service principal. No network
// call is made until the first Token request.
func NewTokenMinter(clientID, clientSecret, host string) *TokenMinter {
	return &TokenMinter{
		clientID:     clientID,
		clientSecret: clientSecret,
		host:         strings.TrimRight(host, "/"),
		httpClient:   &http.Client{Timeout: tokenFetchTimeout},
		now:          time.Now,
	}
}

// Token returns a valid bearer token, refreshing it first if the cached one
// is missing or within the safety margin of expiry. A refresh failure is
// returned to every caller waiting on that refresh.
func (m *TokenMinter) Token(ctx context.Context) (string, error) {
	// Fast path: shared lock only
	m.mu.RLock()
	if !m.needsRefresh() {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check: another caller may have refreshed while we waited
	if !m.needsRefresh() {
		return m.token, nil
	}

	if err := m.refresh(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// needsRefresh reports whether the cached token is absent or too close to
// expiry. Callers must hold m.mu in at least read mode.
func (m *TokenMinter) needsRefresh() bool {
	return m.token == "" || !m.now().Add(refreshMargin).Before(m.expiry)
}

// TokenURL returns the identity-provider endpoint the minter posts to.
func (m *TokenMinter) TokenURL() string {
	if strings.HasPrefix(m.host, "http://") || strings.HasPrefix(m.host, "https://") {
		return m.host + "/oidc/v1/token"
	}
	return "https://" + m.host + "/oidc/v1/token"
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// refresh performs the client-credentials grant. Callers must hold m.mu.
func (m *TokenMinter) refresh(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"all-apis"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(m.clientID, m.clientSecret)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).Error("Failed to refresh workspace OAuth token")
		return fmt.Errorf("token endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logrus.WithField("status", resp.StatusCode).Error("Token endpoint rejected credentials grant")
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token endpoint returned an empty access_token")
	}

	m.token = tr.AccessToken
	m.expiry = m.now().Add(tokenLifetime)

	logrus.Info("Refreshed workspace OAuth token")
	return nil
}
