// Package smtp implements a Provider that submits mail to an authenticated
// SMTP relay over implicit TLS or STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/shineum/quote-intake/internal/email"
)

// defaultTimeout bounds a whole SMTP transaction when ctx has no deadline.
const defaultTimeout = 30 * time.Second

// Config holds the relay connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// ImplicitTLS dials TLS directly (port 465). When false the connection
	// is upgraded with STARTTLS if the server offers it.
	ImplicitTLS bool
	Timeout     time.Duration
	// TLSConfig overrides the client TLS settings, e.g. custom roots.
	TLSConfig *tls.Config
}

// Provider sends each message over its own short-lived SMTP connection.
type Provider struct {
	cfg Config
}

// CommandError records which SMTP step failed and the server reply code.
type CommandError struct {
	Command string
	Code    int
	Err     error
}

func (e *CommandError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("smtp %s failed (code %d): %v", e.Command, e.Code, e.Err)
	}
	return fmt.Sprintf("smtp %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// New creates an SMTP Provider.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{cfg: cfg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send renders msg and delivers it in a single SMTP transaction. The
// connection is always closed before Send returns.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	raw, err := email.BuildRaw(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return &CommandError{Command: "DIAL", Err: err}
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return &CommandError{Command: "DIAL", Err: err}
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return wrapCommand("GREETING", err)
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if !p.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(p.tlsConfig()); err != nil {
				return wrapCommand("STARTTLS", err)
			}
		}
	}

	if p.cfg.Username != "" {
		auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return wrapCommand("AUTH", err)
		}
	}

	if err := client.Mail(email.EnvelopeAddress(msg.From)); err != nil {
		return wrapCommand("MAIL", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(email.EnvelopeAddress(rcpt)); err != nil {
			return wrapCommand("RCPT", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return wrapCommand("DATA", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return wrapCommand("DATA", err)
	}
	if err := w.Close(); err != nil {
		return wrapCommand("DATA", err)
	}

	if err := client.Quit(); err != nil {
		return wrapCommand("QUIT", err)
	}
	return nil
}

func (p *Provider) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	if p.cfg.ImplicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig()}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (p *Provider) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if p.cfg.TLSConfig != nil {
		cfg = p.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.cfg.Host
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

func wrapCommand(command string, err error) error {
	cmdErr := &CommandError{Command: command, Err: err}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		cmdErr.Code = protoErr.Code
	}
	return cmdErr
}
