package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/quote-intake/internal/email"
	"github.com/shineum/quote-intake/internal/provider"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func operatorMessage() *email.Email {
	return &email.Email{
		From:     "FormeHaus <quotes@formehaus.com>",
		To:       []string{"owner@formehaus.com"},
		ReplyTo:  "jane@example.com",
		Subject:  "New Quote Request from Jane",
		HtmlBody: "<p><strong>Name:</strong> Jane</p>",
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	var p provider.Provider = NewWithClient(&mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_SimpleHtmlEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)

	if err := p.Send(context.Background(), operatorMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if input.Content.Simple == nil {
		t.Fatal("expected simple email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "FormeHaus <quotes@formehaus.com>" {
		t.Errorf("FromEmailAddress: got %q", got)
	}
	if got := *input.Content.Simple.Subject.Data; got != "New Quote Request from Jane" {
		t.Errorf("Subject: got %q", got)
	}
	if input.Content.Simple.Body.Html == nil || *input.Content.Simple.Body.Html.Charset != "UTF-8" {
		t.Error("expected UTF-8 HTML body")
	}
	if input.Content.Simple.Body.Text != nil {
		t.Error("expected no text body")
	}
	if len(input.ReplyToAddresses) != 1 || input.ReplyToAddresses[0] != "jane@example.com" {
		t.Errorf("ReplyToAddresses: got %v", input.ReplyToAddresses)
	}
	if len(input.Destination.ToAddresses) != 1 {
		t.Errorf("ToAddresses: got %v", input.Destination.ToAddresses)
	}
	if input.ConfigurationSetName != nil {
		t.Error("configuration set should be unset by default")
	}
}

func TestSend_ConfigurationSet(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)
	p.configurationSet = "quote-intake"

	if err := p.Send(context.Background(), operatorMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(mock.lastInput.ConfigurationSetName); got != "quote-intake" {
		t.Errorf("ConfigurationSetName: got %q", got)
	}
}

func TestSend_WithAttachmentUsesRaw(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient(mock)

	msg := operatorMessage()
	msg.Attachments = []email.Attachment{{
		Filename:    "bracket.stl",
		ContentType: "application/octet-stream",
		Content:     []byte("solid bracket"),
	}}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	if input.Content.Raw == nil {
		t.Fatal("expected raw email content for attachment, got nil")
	}
	if input.Content.Simple != nil {
		t.Error("expected no simple content when using raw message")
	}
	if input.FromEmailAddress != nil {
		t.Error("raw sends take the sender from the message headers")
	}

	raw := string(input.Content.Raw.Data)
	for _, want := range []string{
		"From: FormeHaus <quotes@formehaus.com>",
		"To: owner@formehaus.com",
		"Reply-To: jane@example.com",
		"multipart/mixed",
		"bracket.stl",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
}

func TestSend_ErrorIsWrapped(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("MessageRejected: Email address is not verified")
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			return nil, sentinel
		},
	}
	p := NewWithClient(mock)

	err := p.Send(context.Background(), operatorMessage())
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1 (retries belong to the SDK client)", mock.callCount)
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			return nil, ctx.Err()
		},
	}
	p := NewWithClient(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Send(ctx, operatorMessage()); err == nil {
		t.Fatal("expected error when context cancelled")
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestNew_ConfiguresRetryer(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client, ok := p.client.(*sesv2.Client)
	if !ok {
		t.Fatalf("client: got %T", p.client)
	}
	opts := client.Options()
	if opts.RetryMaxAttempts != maxAttempts {
		t.Errorf("RetryMaxAttempts: got %d, want %d", opts.RetryMaxAttempts, maxAttempts)
	}
	if opts.RetryMode != aws.RetryModeStandard {
		t.Errorf("RetryMode: got %q", opts.RetryMode)
	}
	if opts.Region != "us-east-1" {
		t.Errorf("Region: got %q", opts.Region)
	}
}
