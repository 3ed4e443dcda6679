package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// defaultAttachmentContentType is used when an attachment carries no type.
const defaultAttachmentContentType = "application/octet-stream"

// base64LineLength is the RFC 2045 maximum encoded line length.
const base64LineLength = 76

// BuildRaw renders msg as an RFC 5322 message. Messages without attachments
// are emitted as a single quoted-printable body; messages with attachments
// become multipart/mixed with base64 encoded files.
func BuildRaw(msg *Email) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "From", msg.From)
	writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("UTF-8", sanitizeHeader(msg.Subject)))
	writeHeader(&buf, "Date", time.Now().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		writeHeader(&buf, "Message-ID", msg.MessageID)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	bodyType, body := bodyContent(msg)

	if !msg.HasAttachments() {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", bodyType)
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuotedPrintable(&buf, body); err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", bodyType)
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	bodyPart, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if err := writeQuotedPrintable(bodyPart, body); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}

	for _, att := range msg.Attachments {
		contentType := strings.TrimSpace(att.ContentType)
		if contentType == "" {
			contentType = defaultAttachmentContentType
		}
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", sanitizeHeader(contentType))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": SanitizeFilename(att.Filename),
		}))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return nil, fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// EnvelopeAddress returns the bare address of a header value such as
// "Brand <owner@example.com>", falling back to the trimmed input.
func EnvelopeAddress(headerValue string) string {
	if addr, err := mail.ParseAddress(headerValue); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(headerValue)
}

// SanitizeFilename strips control characters so a filename cannot inject headers.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if strings.TrimSpace(cleaned) == "" {
		return "attachment"
	}
	return cleaned
}

func bodyContent(msg *Email) (string, string) {
	return "text/html; charset=UTF-8", msg.HtmlBody
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, sanitizeHeader(value))
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(value)
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	b.Grow(len(encoded) + len(encoded)/base64LineLength*2)
	for i := 0; i < len(encoded); i += base64LineLength {
		end := i + base64LineLength
		if end > len(encoded) {
			end = len(encoded)
		}
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(encoded[i:end])
	}
	return b.String()
}
