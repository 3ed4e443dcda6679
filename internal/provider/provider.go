// Package provider defines the interface for mail delivery channels.
package provider

import (
	"context"

	"github.com/shineum/quote-intake/internal/email"
)

// Provider is the interface that mail delivery channels must implement.
// A Provider is safe for concurrent use by independent requests.
type Provider interface {
	// Send delivers one rendered message. It returns an error if the
	// channel did not accept the message.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}
