package graph

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenExpiryBuffer is the time before actual expiry when we consider a token expired.
const tokenExpiryBuffer = 5 * time.Minute

// graphScope requests every application permission granted to the app.
const graphScope = "https://graph.microsoft.com/.default"

// tokenCache fetches client-credentials tokens and holds the current one
// until shortly before expiry. It is safe for concurrent use.
type tokenCache struct {
	mu         sync.Mutex
	current    *oauth2.Token
	config     clientcredentials.Config
	httpClient *http.Client
}

func newTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenCache {
	return &tokenCache{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

// Token returns a valid access token, fetching a new one if necessary.
func (tc *tokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.current != nil && time.Now().Before(tc.current.Expiry.Add(-tokenExpiryBuffer)) {
		return tc.current.AccessToken, nil
	}
	return tc.refresh(ctx)
}

// ForceRefresh discards the current token and acquires a new one.
func (tc *tokenCache) ForceRefresh(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.current = nil
	return tc.refresh(ctx)
}

// refresh must be called with tc.mu held.
func (tc *tokenCache) refresh(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.httpClient)
	tok, err := tc.config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	tc.current = tok
	return tok.AccessToken, nil
}
