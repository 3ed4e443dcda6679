// Package conversion reports quote submissions to the Meta Conversions API
// as Lead events. Reporting is best-effort: nothing here returns an error to
// the request path.
package conversion

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/shineum/quote-intake/internal/submission"
)

// Fixed event metadata.
const (
	EventName       = "Lead"
	ActionSource    = "website"
	ContentName     = "Quote Request"
	ContentCategory = "3D Printing"
	Currency        = "USD"
)

// Credentials authorise calls for one pixel.
type Credentials struct {
	AccessToken string
	PixelID     string
}

// Configured reports whether both values are present.
func (c Credentials) Configured() bool {
	return c.AccessToken != "" && c.PixelID != ""
}

// Metadata is the per-request network context that accompanies an event.
type Metadata struct {
	ClientIP  string
	UserAgent string
	Referer   string
	Origin    string
}

// MetadataFromRequest extracts Metadata from inbound headers and the peer
// address.
func MetadataFromRequest(header http.Header, remoteAddr string) Metadata {
	return Metadata{
		ClientIP:  ClientIP(header, remoteAddr),
		UserAgent: header.Get("User-Agent"),
		Referer:   header.Get("Referer"),
		Origin:    header.Get("Origin"),
	}
}

// ClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of remoteAddr.
func ClientIP(header http.Header, remoteAddr string) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// Hash returns the hex SHA-256 of the lower-cased, trimmed value, or "" for
// blank input.
func Hash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// SplitName splits on the first whitespace run: the first token is the first
// name and the remainder, possibly empty, is the last name.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	i := strings.IndexFunc(name, unicode.IsSpace)
	if i < 0 {
		return name, ""
	}
	return name[:i], strings.TrimSpace(name[i:])
}

// Event is one server event in the Conversions API wire format.
type Event struct {
	EventName      string     `json:"event_name"`
	EventTime      int64      `json:"event_time"`
	EventID        string     `json:"event_id,omitempty"`
	EventSourceURL string     `json:"event_source_url,omitempty"`
	ActionSource   string     `json:"action_source"`
	UserData       UserData   `json:"user_data"`
	CustomData     CustomData `json:"custom_data"`
}

// UserData carries hashed identifiers plus unhashed network and browser
// correlation values.
type UserData struct {
	Emails          []string `json:"em,omitempty"`
	Phones          []string `json:"ph,omitempty"`
	FirstNames      []string `json:"fn,omitempty"`
	LastNames       []string `json:"ln,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	FBC             string   `json:"fbc,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
}

// CustomData is the fixed lead classification.
type CustomData struct {
	ContentName     string  `json:"content_name"`
	ContentCategory string  `json:"content_category"`
	Value           float64 `json:"value"`
	Currency        string  `json:"currency"`
}

// BuildEvent derives a Lead event from rec. Every personal identifier is
// hashed before it is placed in the event.
func BuildEvent(rec submission.Record, meta Metadata, now time.Time, defaultSourceURL string) Event {
	user := UserData{
		Emails:          hashedList(rec.Email()),
		Phones:          hashedList(rec.Phone()),
		ClientIPAddress: meta.ClientIP,
		ClientUserAgent: meta.UserAgent,
		FBC:             rec.FBC(),
		FBP:             rec.FBP(),
	}
	first, last := SplitName(rec.Name())
	user.FirstNames = hashedList(first)
	user.LastNames = hashedList(last)

	return Event{
		EventName:      EventName,
		EventTime:      now.Unix(),
		EventID:        rec.EventID(),
		EventSourceURL: sourceURL(meta, defaultSourceURL),
		ActionSource:   ActionSource,
		UserData:       user,
		CustomData: CustomData{
			ContentName:     ContentName,
			ContentCategory: ContentCategory,
			Value:           0,
			Currency:        Currency,
		},
	}
}

func hashedList(value string) []string {
	if h := Hash(value); h != "" {
		return []string{h}
	}
	return nil
}

func sourceURL(meta Metadata, fallback string) string {
	switch {
	case meta.Referer != "":
		return meta.Referer
	case meta.Origin != "":
		return meta.Origin
	default:
		return fallback
	}
}
