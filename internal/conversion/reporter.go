package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/quote-intake/internal/submission"
)

const (
	defaultEndpoint   = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultTimeout    = 10 * time.Second
	maxResponseBody   = 64 << 10
)

// Status is the terminal state of one Report call.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Outcome describes what happened to a report. Err is set only for
// StatusFailed and is informational.
type Outcome struct {
	Status  Status
	EventID string
	Err     error
}

// Doer is the subset of *http.Client used by the Reporter.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Reporter.
type Options struct {
	Credentials Credentials
	APIVersion  string
	// TestEventCode routes events to the Events Manager test tab.
	TestEventCode    string
	DefaultSourceURL string
	Timeout          time.Duration
	// Endpoint overrides the Graph API base URL.
	Endpoint string
	Client   Doer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Reporter sends one Lead event per successful submission.
type Reporter struct {
	opts Options
}

// NewReporter applies defaults to opts.
func NewReporter(opts Options) *Reporter {
	if opts.APIVersion == "" {
		opts.APIVersion = defaultAPIVersion
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reporter{opts: opts}
}

type eventRequest struct {
	Data          []Event `json:"data"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

type apiError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Report builds and transmits the event for rec. It never panics and never
// returns an error; failures are logged and reflected in the Outcome.
func (r *Reporter) Report(ctx context.Context, rec submission.Record, meta Metadata) (out Outcome) {
	logger := r.opts.Logger.With("component", "conversion")
	out.EventID = rec.EventID()

	if !r.opts.Credentials.Configured() {
		out.Status = StatusSkipped
		logger.Debug("conversion reporting disabled")
		return out
	}

	defer func() {
		if p := recover(); p != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("conversion: panic: %v", p)
			logger.Error("conversion event failed", "error", out.Err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := r.send(ctx, BuildEvent(rec, meta, r.opts.Now(), r.opts.DefaultSourceURL)); err != nil {
		out.Status = StatusFailed
		out.Err = err
		logger.Warn("conversion event failed",
			"event_id", out.EventID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return out
	}

	out.Status = StatusSent
	logger.Info("conversion event sent",
		"event_id", out.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (r *Reporter) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(eventRequest{Data: []Event{event}, TestEventCode: r.opts.TestEventCode})
	if err != nil {
		return fmt.Errorf("conversion: marshal event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?%s",
		r.opts.Endpoint,
		url.PathEscape(r.opts.APIVersion),
		url.PathEscape(r.opts.Credentials.PixelID),
		url.Values{"access_token": {r.opts.Credentials.AccessToken}}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("conversion: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.opts.Client.Do(req)
	if err != nil {
		// The URL carries the access token.
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("conversion: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode/100 == 2 {
		return nil
	}

	var apiErr apiError
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("conversion: API error (HTTP %d, code %d): %s",
			resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
	}
	return fmt.Errorf("conversion: API error (HTTP %d)", resp.StatusCode)
}
