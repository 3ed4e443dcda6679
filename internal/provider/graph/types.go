// Package graph implements a Provider that sends emails via the Microsoft Graph API.
package graph

import (
	"encoding/base64"
	"net/mail"

	"github.com/shineum/quote-intake/internal/email"
)

// fileAttachmentType is the OData discriminator for inline file content.
const fileAttachmentType = "#microsoft.graph.fileAttachment"

// sendMailRequest is the body of POST /users/{id}/sendMail. The sender is the
// mailbox in the URL, so the message carries no from field.
type sendMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         itemBody         `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
	ReplyTo      []graphRecipient `json:"replyTo,omitempty"`
	Attachments  []fileAttachment `json:"attachments,omitempty"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name,omitempty"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func buildSendMailRequest(msg *email.Email) *sendMailRequest {
	m := graphMessage{
		Subject:      msg.Subject,
		Body:         itemBody{ContentType: "html", Content: msg.HtmlBody},
		ToRecipients: recipients(msg.To),
	}
	if msg.ReplyTo != "" {
		m.ReplyTo = recipients([]string{msg.ReplyTo})
	}
	for _, att := range msg.Attachments {
		m.Attachments = append(m.Attachments, newFileAttachment(att))
	}
	return &sendMailRequest{Message: m}
}

// recipients keeps display names when an address parses and passes the raw
// value through otherwise.
func recipients(addrs []string) []graphRecipient {
	out := make([]graphRecipient, len(addrs))
	for i, value := range addrs {
		out[i].EmailAddress.Address = value
		if addr, err := mail.ParseAddress(value); err == nil {
			out[i].EmailAddress.Name = addr.Name
			out[i].EmailAddress.Address = addr.Address
		}
	}
	return out
}

func newFileAttachment(att email.Attachment) fileAttachment {
	ct := att.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return fileAttachment{
		ODataType:    fileAttachmentType,
		Name:         email.SanitizeFilename(att.Filename),
		ContentType:  ct,
		ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
	}
}
