// Package formdata decodes multipart/form-data request bodies into an ordered
// sequence of named text fields and file parts.
package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// ErrMalformedRequest is returned when the content type or body cannot be
// decoded as multipart form data.
var ErrMalformedRequest = errors.New("malformed multipart request")

const formDataMediaType = "multipart/form-data"

// RawPart is one decoded multipart segment. Filename is set only for file parts.
type RawPart struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// IsFile reports whether the part was submitted as a file attachment.
func (p RawPart) IsFile() bool {
	return p.Filename != ""
}

// Boundary extracts the boundary token from a Content-Type header value.
func Boundary(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", fmt.Errorf("%w: missing content type", ErrMalformedRequest)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: invalid content type: %v", ErrMalformedRequest, err)
	}
	if mediaType != formDataMediaType {
		return "", fmt.Errorf("%w: unexpected media type %q", ErrMalformedRequest, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrMalformedRequest)
	}
	return boundary, nil
}

// Decode splits body into parts using the boundary declared in contentType.
// Part order is preserved and repeated field names are kept.
func Decode(body []byte, contentType string) ([]RawPart, error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, err
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)

	var parts []RawPart
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: part %d: %v", ErrMalformedRequest, len(parts)+1, err)
		}

		decoded, err := readPart(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: part %d: %v", ErrMalformedRequest, len(parts)+1, err)
		}
		parts = append(parts, decoded)
	}

	return parts, nil
}

func readPart(part *multipart.Part) (RawPart, error) {
	name := part.FormName()
	if name == "" {
		return RawPart{}, errors.New("missing form-data name")
	}

	data, err := io.ReadAll(part)
	if err != nil {
		return RawPart{}, err
	}

	// FileName is empty both when the attribute is absent and when the
	// browser sends filename="" for an empty file input.
	return RawPart{
		Name:        name,
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
