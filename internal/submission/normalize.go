package submission

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shineum/quote-intake/internal/formdata"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("submission validation failed")

// ValidationError names the offending field and a short, caller-safe reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var validate = validator.New()

// AttachmentPolicy re-checks the upload limits the browser enforces.
// The zero value accepts any file.
type AttachmentPolicy struct {
	// AllowedExtensions are lower-case extensions including the dot, e.g. ".stl".
	AllowedExtensions []string
	// MaxBytes is the size ceiling; zero disables the check.
	MaxBytes int64
}

// Check returns a *ValidationError when att violates the policy.
func (p AttachmentPolicy) Check(att Attachment) error {
	if len(p.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(att.Filename))
		allowed := false
		for _, candidate := range p.AllowedExtensions {
			if ext == strings.ToLower(candidate) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &ValidationError{
				Field:  "file",
				Reason: fmt.Sprintf("unsupported file type %q (allowed: %s)", ext, strings.Join(p.AllowedExtensions, ", ")),
			}
		}
	}
	if p.MaxBytes > 0 && att.Size() > p.MaxBytes {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("file exceeds %d bytes", p.MaxBytes),
		}
	}
	return nil
}

// Normalizer maps decoded parts onto a Record.
type Normalizer struct {
	Policy AttachmentPolicy
}

// Normalize is Normalizer{}.Normalize: no attachment policy applied.
func Normalize(parts []formdata.RawPart) (Record, error) {
	return Normalizer{}.Normalize(parts)
}

// Normalize builds a Record from parts. Text values are decoded as UTF-8 and
// trimmed; a repeated field keeps its last value and the last file part
// becomes the attachment. Name and a syntactically valid email are required.
func (n Normalizer) Normalize(parts []formdata.RawPart) (Record, error) {
	fields := make(map[string]string, len(parts))
	var attachment *Attachment

	for _, part := range parts {
		if part.IsFile() {
			attachment = &Attachment{
				Filename:    part.Filename,
				ContentType: part.ContentType,
				Data:        part.Data,
			}
			continue
		}
		fields[part.Name] = strings.TrimSpace(strings.ToValidUTF8(string(part.Data), "\uFFFD"))
	}

	record := NewRecord(fields, attachment)
	if err := ValidateIdentity(record); err != nil {
		return Record{}, err
	}
	if att, ok := record.Attachment(); ok {
		if err := n.Policy.Check(att); err != nil {
			return Record{}, err
		}
	}
	return record, nil
}

// ValidateIdentity checks the fields outgoing correspondence depends on.
func ValidateIdentity(record Record) error {
	if record.Name() == "" {
		return &ValidationError{Field: FieldName, Reason: "is required"}
	}
	if record.Email() == "" {
		return &ValidationError{Field: FieldEmail, Reason: "is required"}
	}
	if err := validate.Var(record.Email(), "email"); err != nil {
		return &ValidationError{Field: FieldEmail, Reason: "must be a valid email address"}
	}
	return nil
}
