// Package gmail implements a Provider that sends through the Gmail API on
// behalf of a single authorised account.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/shineum/quote-intake/internal/email"
)

// mediaThreshold is the raw size above which the message is sent as a media
// upload instead of inline base64.
const mediaThreshold = 5 << 20

// Config points at the OAuth client and stored user token files.
type Config struct {
	CredentialsPath string
	TokenPath       string
}

// Provider sends messages as the authorised user ("me").
type Provider struct {
	service *gmailapi.Service
}

// New builds a Gmail service from an installed-app client secret and a
// previously authorised token. The token is refreshed automatically.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	credentials, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("gmail: read credentials: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(credentials, gmailapi.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("gmail: parse credentials: %w", err)
	}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	service, err := gmailapi.NewService(ctx, option.WithTokenSource(oauthConfig.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	return NewWithService(service), nil
}

// NewWithService wraps an existing Gmail service.
func NewWithService(service *gmailapi.Service) *Provider {
	return &Provider{service: service}
}

// Send renders msg as RFC 5322 and submits it.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	raw, err := email.BuildRaw(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	var call *gmailapi.UsersMessagesSendCall
	if len(raw) > mediaThreshold {
		call = p.service.Users.Messages.Send("me", &gmailapi.Message{}).
			Media(bytes.NewReader(raw), googleapi.ContentType("message/rfc822"))
	} else {
		call = p.service.Users.Messages.Send("me", &gmailapi.Message{
			Raw: base64.URLEncoding.EncodeToString(raw),
		})
	}

	if _, err := call.Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail: send failed: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gmail"
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gmail: open token: %w", err)
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("gmail: decode token: %w", err)
	}
	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, fmt.Errorf("gmail: token file %s holds no token", path)
	}
	return token, nil
}
