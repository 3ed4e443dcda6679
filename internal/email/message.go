// Package email defines the outbound message model shared by every delivery provider.
package email

// Email is a fully rendered message ready to hand to a Provider.
type Email struct {
	From        string
	To          []string
	ReplyTo     string
	Subject     string
	HtmlBody    string
	Attachments []Attachment
	MessageID   string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// HasAttachments reports whether the message carries any binary parts.
func (e *Email) HasAttachments() bool {
	return len(e.Attachments) > 0
}
