// Package submission turns decoded form parts into the canonical quote
// request record consumed by notification and conversion reporting.
package submission

// Recognized form field names.
const (
	FieldName        = "name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldDescription = "description"
	FieldScale       = "scale"
	FieldMaterial    = "material"
	FieldFinishing   = "finishing"
	FieldTimeline    = "timeline"
	FieldNotes       = "notes"
	FieldEventID     = "event_id"
	FieldFBC         = "fbc"
	FieldFBP         = "fbp"
)

// Attachment is the single uploaded model file of a submission.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size returns the attachment payload length in bytes.
func (a Attachment) Size() int64 {
	return int64(len(a.Data))
}

// Record is the canonical, read-only view of one form submission.
// Unknown fields are retained so callers can inspect them, but only the
// recognized set is rendered or reported.
type Record struct {
	fields     map[string]string
	attachment *Attachment
}

// NewRecord builds a Record from already-normalized values. It copies its
// inputs so later mutation by the caller has no effect.
func NewRecord(fields map[string]string, attachment *Attachment) Record {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	var att *Attachment
	if attachment != nil {
		clone := *attachment
		att = &clone
	}
	return Record{fields: copied, attachment: att}
}

// Value returns the value of a field, or "" when absent.
func (r Record) Value(field string) string {
	return r.fields[field]
}

// Attachment returns the uploaded file, if any.
func (r Record) Attachment() (Attachment, bool) {
	if r.attachment == nil {
		return Attachment{}, false
	}
	return *r.attachment, true
}

func (r Record) Name() string        { return r.fields[FieldName] }
func (r Record) Email() string       { return r.fields[FieldEmail] }
func (r Record) Phone() string       { return r.fields[FieldPhone] }
func (r Record) Description() string { return r.fields[FieldDescription] }
func (r Record) Scale() string       { return r.fields[FieldScale] }
func (r Record) Material() string    { return r.fields[FieldMaterial] }
func (r Record) Finishing() string   { return r.fields[FieldFinishing] }
func (r Record) Timeline() string    { return r.fields[FieldTimeline] }
func (r Record) Notes() string       { return r.fields[FieldNotes] }
func (r Record) EventID() string     { return r.fields[FieldEventID] }
func (r Record) FBC() string         { return r.fields[FieldFBC] }
func (r Record) FBP() string         { return r.fields[FieldFBP] }
