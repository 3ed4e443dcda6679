// Package stdout implements a Provider that prints emails instead of
// delivering them, for local development.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/quote-intake/internal/email"
)

const separator = "========================================\n"

// Provider prints email messages in a human-readable summary, or as the full
// RFC 5322 message when raw output is enabled.
type Provider struct {
	mu     sync.Mutex
	writer io.Writer
	raw    bool
}

// New creates a Provider that writes summaries to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a Provider that writes to w. When raw is set each
// message is rendered exactly as an SMTP relay would receive it.
func NewWithWriter(w io.Writer, raw bool) *Provider {
	return &Provider{writer: w, raw: raw}
}

// Send prints msg.
func (p *Provider) Send(_ context.Context, msg *email.Email) error {
	var out string
	if p.raw {
		data, err := email.BuildRaw(msg)
		if err != nil {
			return fmt.Errorf("failed to build message: %w", err)
		}
		out = separator + string(data) + "\n" + separator
	} else {
		out = summarize(msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.writer, out); err != nil {
		return fmt.Errorf("stdout: write failed: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func summarize(msg *email.Email) string {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")

	b.WriteString(msg.HtmlBody + "\n")

	if msg.HasAttachments() {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString(separator)
	return b.String()
}

func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
