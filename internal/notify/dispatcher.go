// Package notify renders the operator notice and the customer acknowledgment
// for a quote request and delivers both through a mail provider.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/quote-intake/internal/email"
	"github.com/shineum/quote-intake/internal/provider"
	"github.com/shineum/quote-intake/internal/submission"
)

// ErrDelivery is matched by every *DeliveryError via errors.Is.
var ErrDelivery = errors.New("notification delivery failed")

// Message kinds.
const (
	KindOperator = "operator"
	KindCustomer = "customer"
)

// MessageResult is the outcome of one send attempt.
type MessageResult struct {
	Kind      string
	Recipient string
	Err       error
	Duration  time.Duration
}

// OK reports whether the provider accepted the message.
func (r MessageResult) OK() bool {
	return r.Err == nil
}

// Result reports the outcome of both messages of one submission.
type Result struct {
	Operator MessageResult
	Customer MessageResult
}

// OK reports whether both messages were accepted.
func (r Result) OK() bool {
	return r.Operator.OK() && r.Customer.OK()
}

// DeliveryError is returned when either message was rejected. It carries the
// per-message results for diagnostics.
type DeliveryError struct {
	Result Result
}

func (e *DeliveryError) Error() string {
	var failed []string
	for _, r := range []MessageResult{e.Result.Operator, e.Result.Customer} {
		if !r.OK() {
			failed = append(failed, fmt.Sprintf("%s: %v", r.Kind, r.Err))
		}
	}
	return fmt.Sprintf("notification delivery failed (%d of 2): %v", len(failed), failed)
}

// Is makes errors.Is(err, ErrDelivery) true for any DeliveryError.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// Unwrap exposes the underlying provider errors to errors.As.
func (e *DeliveryError) Unwrap() []error {
	var errs []error
	if e.Result.Operator.Err != nil {
		errs = append(errs, e.Result.Operator.Err)
	}
	if e.Result.Customer.Err != nil {
		errs = append(errs, e.Result.Customer.Err)
	}
	return errs
}

// Settings configures a Dispatcher.
type Settings struct {
	// From is the sender header for both messages.
	From string
	// OperatorAddress receives the operator notice.
	OperatorAddress string
	Branding        Branding
	// SendTimeout bounds each provider call; zero means no extra bound.
	SendTimeout time.Duration
}

// Dispatcher sends the two messages of a submission.
type Dispatcher struct {
	provider provider.Provider
	settings Settings
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher delivering through p.
func NewDispatcher(p provider.Provider, settings Settings, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{provider: p, settings: settings, logger: logger}
}

// Dispatch sends the operator notice, then the customer acknowledgment.
// Both are attempted regardless of the other's outcome; if either fails a
// *DeliveryError is returned alongside the full Result.
func (d *Dispatcher) Dispatch(ctx context.Context, rec submission.Record) (Result, error) {
	if err := submission.ValidateIdentity(rec); err != nil {
		return Result{}, err
	}

	operatorMsg := RenderOperator(rec, d.settings.From, d.settings.OperatorAddress)
	customerMsg := RenderCustomer(rec, d.settings.From, d.settings.Branding)
	operatorMsg.MessageID = newMessageID(d.settings.From)
	customerMsg.MessageID = newMessageID(d.settings.From)

	result := Result{
		Operator: d.send(ctx, KindOperator, operatorMsg),
		Customer: d.send(ctx, KindCustomer, customerMsg),
	}
	if !result.OK() {
		return result, &DeliveryError{Result: result}
	}
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, kind string, msg *email.Email) MessageResult {
	if d.settings.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.settings.SendTimeout)
		defer cancel()
	}

	started := time.Now()
	err := d.provider.Send(ctx, msg)
	res := MessageResult{
		Kind:      kind,
		Recipient: msg.To[0],
		Err:       err,
		Duration:  time.Since(started),
	}

	if err != nil {
		d.logger.Error("mail send failed",
			"kind", kind,
			"provider", d.provider.Name(),
			"duration_ms", res.Duration.Milliseconds(),
			"error", err,
		)
		return res
	}
	d.logger.Info("mail sent",
		"kind", kind,
		"provider", d.provider.Name(),
		"attachments", len(msg.Attachments),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

// newMessageID returns an RFC 5322 msg-id in the sender's domain.
func newMessageID(from string) string {
	domain := "localhost"
	addr := email.EnvelopeAddress(from)
	if at := strings.LastIndexByte(addr, '@'); at >= 0 && at < len(addr)-1 {
		domain = addr[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
