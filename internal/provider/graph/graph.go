package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/quote-intake/internal/email"
)

// Config holds the settings for creating a Provider.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox that sends on behalf of the application.
	Sender string
}

// maxRetries bounds the retries after the first sendMail attempt.
const maxRetries = 2

// baseRetryDelay is the first backoff step.
const baseRetryDelay = 500 * time.Millisecond

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Provider sends emails via the Microsoft Graph sendMail endpoint using
// OAuth2 client credentials.
type Provider struct {
	graphURL   string
	httpClient *http.Client
	token      *tokenCache
	retryDelay time.Duration
}

// New creates a Provider for the configured tenant and mailbox.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Provider {
	return &Provider{
		graphURL:   graphURL,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		retryDelay: baseRetryDelay,
	}
}

// Send posts msg to sendMail. A 401 refreshes the token once; 429, 5xx and
// network failures are retried up to maxRetries times.
func (g *Provider) Send(ctx context.Context, msg *email.Email) error {
	payload, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("graph: encode sendMail: %w", err)
	}

	refreshed := false
	for attempt := 0; ; attempt++ {
		token, err := g.token.Token(ctx)
		if err != nil {
			return fmt.Errorf("graph: access token: %w", err)
		}
		err = g.post(ctx, token, payload)
		if err == nil {
			return nil
		}

		var apiErr *apiError
		isAPI := errors.As(err, &apiErr)
		switch {
		case ctx.Err() != nil:
			return err
		case isAPI && apiErr.Status == http.StatusUnauthorized && !refreshed:
			refreshed = true
			if _, err := g.token.ForceRefresh(ctx); err != nil {
				return fmt.Errorf("graph: token refresh: %w", err)
			}
			continue
		case isAPI && !apiErr.Temporary():
			return err
		case attempt >= maxRetries:
			return fmt.Errorf("graph: giving up after %d attempts: %w", attempt+1, err)
		}

		delay := g.wait(apiErr, attempt)
		slog.Debug("graph sendMail failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if err := sleepWithContext(ctx, delay); err != nil {
			return fmt.Errorf("graph: retry wait: %w", err)
		}
	}
}

// Name returns the provider name.
func (g *Provider) Name() string {
	return "msgraph"
}

func (g *Provider) post(ctx context.Context, token string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: post sendMail: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}
	return readAPIError(resp)
}

// apiError is a non-2xx sendMail response.
type apiError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: sendMail %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph: sendMail %d: %s", e.Status, e.Message)
}

// Temporary reports whether repeating the request may succeed.
func (e *apiError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func readAPIError(resp *http.Response) *apiError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}

	var parsed graphErrorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		e.Code = parsed.Error.Code
		e.Message = parsed.Error.Message
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// wait is the pause before the next attempt: Retry-After when the server
// sent one, doubling retryDelay otherwise.
func (g *Provider) wait(apiErr *apiError, attempt int) time.Duration {
	if apiErr != nil && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return g.retryDelay << attempt
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
