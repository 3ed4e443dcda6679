package email

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
)

func TestBuildRaw_HTMLWithoutAttachments(t *testing.T) {
	t.Parallel()

	raw, err := BuildRaw(&Email{
		From:     "FormeHaus <studio@example.com>",
		To:       []string{"jane@example.com"},
		ReplyTo:  "jane@example.com",
		Subject:  "Quote Request Received - FormeHaus",
		HtmlBody: "<p>Thank you</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generated message does not parse: %v", err)
	}
	if got := msg.Header.Get("Subject"); got != "Quote Request Received - FormeHaus" {
		t.Errorf("Subject: got %q", got)
	}
	if got := msg.Header.Get("Reply-To"); got != "jane@example.com" {
		t.Errorf("Reply-To: got %q", got)
	}
	if got := msg.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", got)
	}
	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	if err != nil {
		t.Fatalf("body decode: %v", err)
	}
	if string(body) != "<p>Thank you</p>" {
		t.Errorf("body: got %q", body)
	}
}

func TestBuildRaw_WithAttachment(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("solid ascii\n"), 40)
	raw, err := BuildRaw(&Email{
		From:     "studio@example.com",
		To:       []string{"owner@example.com"},
		Subject:  "New Quote Request from Jane Doe",
		HtmlBody: "<h2>New Quote Request</h2>",
		Attachments: []Attachment{{
			Filename: "bracket.stl",
			Content:  payload,
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("generated message does not parse: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("content type: %v", err)
	}
	if mediaType != "multipart/mixed" {
		t.Fatalf("media type: got %q, want multipart/mixed", mediaType)
	}

	reader := multipart.NewReader(msg.Body, params["boundary"])
	if _, err := reader.NextPart(); err != nil {
		t.Fatalf("body part: %v", err)
	}
	att, err := reader.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if att.FileName() != "bracket.stl" {
		t.Errorf("filename: got %q", att.FileName())
	}
	if got := att.Header.Get("Content-Type"); got != defaultAttachmentContentType {
		t.Errorf("attachment content type: got %q", got)
	}
	encoded, _ := io.ReadAll(att)
	decoded, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(string(encoded)))
	if err != nil {
		t.Fatalf("attachment decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("attachment payload mismatch")
	}
	for _, line := range strings.Split(string(encoded), "\r\n") {
		if len(line) > base64LineLength {
			t.Fatalf("base64 line exceeds %d characters: %d", base64LineLength, len(line))
		}
	}
}

func TestBuildRaw_StripsHeaderInjection(t *testing.T) {
	t.Parallel()

	raw, err := BuildRaw(&Email{
		From:     "studio@example.com",
		To:       []string{"owner@example.com"},
		Subject:  "New Quote Request from Jane\r\nBcc: spam@example.com",
		HtmlBody: "body",
		Attachments: []Attachment{{
			Filename: "part.obj\r\nBcc: spam@example.com",
			Content:  []byte("v 0 0 0"),
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(raw), "\r\nBcc:") {
		t.Fatal("expected header injection attempt to be stripped")
	}
}

func TestEnvelopeAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"FormeHaus <studio@example.com>", "studio@example.com"},
		{"studio@example.com", "studio@example.com"},
		{" not an address ", "not an address"},
	}
	for _, tt := range tests {
		if got := EnvelopeAddress(tt.in); got != tt.want {
			t.Errorf("EnvelopeAddress(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_EmptyFallsBack(t *testing.T) {
	t.Parallel()

	if got := SanitizeFilename("\r\n"); got != "attachment" {
		t.Errorf("got %q, want %q", got, "attachment")
	}
}
