package external

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

	"teamsjira/internal/types"
)

// refreshMargin renews the cached token this long before its reported
// expiry so in-flight sends never carry an expired bearer.
const refreshMargin = 2 * time.Minute

// ClientCredentialsTokenProvider acquires Bot Framework connector tokens
// via the OAuth 2.0 client-credentials grant and caches them until close
// to expiry. Safe for concurrent use.
type ClientCredentialsTokenProvider struct {
	client   *http.Client
	tokenURL string
	appID    string
	secret   string

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClientCredentialsTokenProvider creates a token provider for the given
// bot app registration.
func NewClientCredentialsTokenProvider(client *http.Client, tokenURL, appID, secret string) *ClientCredentialsTokenProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ClientCredentialsTokenProvider{
		client:   client,
		tokenURL: tokenURL,
		appID:    appID,
		secret:   secret,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, refreshing it when the cached one is
// absent or near expiry.
func (p *ClientCredentialsTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expires.Add(-refreshMargin)) {
		return p.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.appID},
		"client_secret": {p.secret},
		"scope":         {"https://api.botframework.com/.default"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token provider: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamTeams, "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", types.NewAppError(types.ErrCodeUpstreamTeams,
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamTeams, "failed to decode token response", err)
	}
	if tr.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamTeams, "token endpoint returned empty access_token", nil)
	}

	p.token = tr.AccessToken
	p.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return p.token, nil
}
