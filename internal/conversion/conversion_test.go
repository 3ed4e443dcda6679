package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shineum/quote-intake/internal/submission"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecord() submission.Record {
	return submission.NewRecord(map[string]string{
		submission.FieldName:    "Jane Q Doe",
		submission.FieldEmail:   "Jane@Example.com",
		submission.FieldPhone:   "555-0100",
		submission.FieldEventID: "evt-123",
		submission.FieldFBC:     "fb.1.1700000000.abc",
		submission.FieldFBP:     "fb.1.1700000000.xyz",
	}, nil)
}

func TestHash_Normalizes(t *testing.T) {
	t.Parallel()

	if Hash("A@B.com") != Hash(" a@b.com ") {
		t.Error("hash should ignore case and surrounding whitespace")
	}
	// sha256("a@b.com")
	const want = "fb98d44ad7501a959f3f4f4a3f004fe2d9e581ea6207e218c4b02c08a4d75adf"
	if got := Hash("A@B.com"); got != want {
		t.Errorf("Hash: got %s, want %s", got, want)
	}
	if Hash("   ") != "" {
		t.Error("blank input should hash to empty")
	}
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, first, last string
	}{
		{"Jane", "Jane", ""},
		{"Jane Doe", "Jane", "Doe"},
		{"Jane Q Doe", "Jane", "Q Doe"},
		{"  Jane\tDoe  ", "Jane", "Doe"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.first, tt.last)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     http.Header
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", http.Header{"X-Forwarded-For": {"203.0.113.7, 10.0.0.1"}, "X-Real-Ip": {"10.0.0.2"}}, "10.0.0.3:1234", "203.0.113.7"},
		{"real ip", http.Header{"X-Real-Ip": {"198.51.100.4"}}, "10.0.0.3:1234", "198.51.100.4"},
		{"remote addr", http.Header{}, "192.0.2.9:5555", "192.0.2.9"},
		{"remote addr without port", http.Header{}, "192.0.2.9", "192.0.2.9"},
		{"blank forwarded falls through", http.Header{"X-Forwarded-For": {" , 10.0.0.1"}}, "192.0.2.9:1", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.header, tt.remoteAddr); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildEvent(t *testing.T) {
	t.Parallel()

	meta := Metadata{ClientIP: "203.0.113.7", UserAgent: "Mozilla/5.0", Origin: "https://formehaus.com"}
	ev := BuildEvent(testRecord(), meta, fixedNow, "https://default.example")

	if ev.EventName != "Lead" || ev.ActionSource != "website" {
		t.Errorf("event metadata: %+v", ev)
	}
	if ev.EventTime != fixedNow.Unix() {
		t.Errorf("EventTime: got %d", ev.EventTime)
	}
	if ev.EventID != "evt-123" {
		t.Errorf("EventID: got %q", ev.EventID)
	}
	if ev.EventSourceURL != "https://formehaus.com" {
		t.Errorf("EventSourceURL: got %q", ev.EventSourceURL)
	}

	u := ev.UserData
	if len(u.Emails) != 1 || u.Emails[0] != Hash("jane@example.com") {
		t.Errorf("em: got %v", u.Emails)
	}
	if len(u.Phones) != 1 || u.Phones[0] != Hash("555-0100") {
		t.Errorf("ph: got %v", u.Phones)
	}
	if len(u.FirstNames) != 1 || u.FirstNames[0] != Hash("jane") {
		t.Errorf("fn: got %v", u.FirstNames)
	}
	if len(u.LastNames) != 1 || u.LastNames[0] != Hash("q doe") {
		t.Errorf("ln: got %v", u.LastNames)
	}
	if u.ClientIPAddress != "203.0.113.7" || u.ClientUserAgent != "Mozilla/5.0" {
		t.Errorf("network data: %+v", u)
	}
	if u.FBC != "fb.1.1700000000.abc" || u.FBP != "fb.1.1700000000.xyz" {
		t.Errorf("browser ids must pass through unhashed: %+v", u)
	}
	if ev.CustomData != (CustomData{ContentName: "Quote Request", ContentCategory: "3D Printing", Value: 0, Currency: "USD"}) {
		t.Errorf("custom data: %+v", ev.CustomData)
	}
}

func TestBuildEvent_NoRawPII(t *testing.T) {
	t.Parallel()

	ev := BuildEvent(testRecord(), Metadata{}, fixedNow, "https://formehaus.com")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, raw := range []string{"Jane", "jane@example.com", "Jane@Example.com", "555-0100", "Doe"} {
		if bytes.Contains(data, []byte(raw)) {
			t.Errorf("payload contains raw value %q: %s", raw, data)
		}
	}
}

func TestBuildEvent_OptionalFieldsOmitted(t *testing.T) {
	t.Parallel()

	rec := submission.NewRecord(map[string]string{
		submission.FieldName:  "Cher",
		submission.FieldEmail: "cher@example.com",
	}, nil)
	ev := BuildEvent(rec, Metadata{Referer: "https://formehaus.com/quote"}, fixedNow, "https://formehaus.com")

	if ev.UserData.Phones != nil || ev.UserData.LastNames != nil {
		t.Errorf("absent values should be omitted: %+v", ev.UserData)
	}
	if ev.EventID != "" {
		t.Errorf("EventID: got %q", ev.EventID)
	}
	if ev.EventSourceURL != "https://formehaus.com/quote" {
		t.Errorf("referer should win: got %q", ev.EventSourceURL)
	}

	data, _ := json.Marshal(ev)
	for _, key := range []string{`"ph"`, `"ln"`, `"event_id"`, `"fbc"`, `"fbp"`} {
		if bytes.Contains(data, []byte(key)) {
			t.Errorf("payload should omit %s: %s", key, data)
		}
	}
	if !bytes.Contains(data, []byte(`"value":0`)) {
		t.Errorf("value must always be present: %s", data)
	}
}

func TestBuildEvent_DefaultSourceURL(t *testing.T) {
	t.Parallel()

	ev := BuildEvent(testRecord(), Metadata{}, fixedNow, "https://formehaus.com")
	if ev.EventSourceURL != "https://formehaus.com" {
		t.Errorf("EventSourceURL: got %q", ev.EventSourceURL)
	}
}

type countingDoer struct {
	calls int
	fn    func(*http.Request) (*http.Response, error)
}

func (d *countingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls++
	return d.fn(req)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReport_SkippedWithoutCredentials(t *testing.T) {
	t.Parallel()

	doer := &countingDoer{fn: func(*http.Request) (*http.Response, error) {
		t.Error("no request expected")
		return nil, errors.New("unexpected")
	}}
	for _, creds := range []Credentials{{}, {AccessToken: "tok"}, {PixelID: "123"}} {
		r := NewReporter(Options{Credentials: creds, Client: doer, Logger: discardLogger()})
		out := r.Report(context.Background(), testRecord(), Metadata{})
		if out.Status != StatusSkipped {
			t.Errorf("creds %+v: status %q, want skipped", creds, out.Status)
		}
	}
	if doer.calls != 0 {
		t.Errorf("calls: got %d, want 0", doer.calls)
	}
}

func TestReport_SendsPayload(t *testing.T) {
	t.Parallel()

	var (
		gotPath  string
		gotQuery string
		gotBody  eventRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("access_token")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events_received":1,"fbtrace_id":"abc"}`))
	}))
	defer server.Close()

	r := NewReporter(Options{
		Credentials:      Credentials{AccessToken: "secret-token", PixelID: "998877"},
		APIVersion:       "v21.0",
		TestEventCode:    "TEST123",
		DefaultSourceURL: "https://formehaus.com",
		Endpoint:         server.URL,
		Logger:           discardLogger(),
		Now:              func() time.Time { return fixedNow },
	})

	out := r.Report(context.Background(), testRecord(), Metadata{ClientIP: "203.0.113.7"})
	if out.Status != StatusSent || out.Err != nil {
		t.Fatalf("outcome: %+v", out)
	}
	if out.EventID != "evt-123" {
		t.Errorf("EventID: got %q", out.EventID)
	}
	if gotPath != "/v21.0/998877/events" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotQuery != "secret-token" {
		t.Errorf("access_token: got %q", gotQuery)
	}
	if gotBody.TestEventCode != "TEST123" {
		t.Errorf("test_event_code: got %q", gotBody.TestEventCode)
	}
	if len(gotBody.Data) != 1 || gotBody.Data[0].EventTime != fixedNow.Unix() {
		t.Errorf("data: %+v", gotBody.Data)
	}
}

func TestReport_APIErrorIsFailedOutcome(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))
	defer server.Close()

	r := NewReporter(Options{
		Credentials: Credentials{AccessToken: "bad", PixelID: "1"},
		Endpoint:    server.URL,
		Logger:      discardLogger(),
	})
	out := r.Report(context.Background(), testRecord(), Metadata{})
	if out.Status != StatusFailed {
		t.Fatalf("status: got %q, want failed", out.Status)
	}
	if out.Err == nil || !strings.Contains(out.Err.Error(), "code 190") {
		t.Errorf("error: %v", out.Err)
	}
}

func TestReport_UnreachableEndpoint(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	r := NewReporter(Options{
		Credentials: Credentials{AccessToken: "secret-token", PixelID: "1"},
		Endpoint:    endpoint,
		Timeout:     time.Second,
		Logger:      discardLogger(),
	})
	out := r.Report(context.Background(), testRecord(), Metadata{})
	if out.Status != StatusFailed || out.Err == nil {
		t.Fatalf("outcome: %+v", out)
	}
	if strings.Contains(out.Err.Error(), "secret-token") {
		t.Errorf("error leaks the access token: %v", out.Err)
	}
}

func TestReport_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	doer := &countingDoer{fn: func(*http.Request) (*http.Response, error) {
		panic("transport exploded")
	}}
	r := NewReporter(Options{
		Credentials: Credentials{AccessToken: "tok", PixelID: "1"},
		Client:      doer,
		Logger:      discardLogger(),
	})
	out := r.Report(context.Background(), testRecord(), Metadata{})
	if out.Status != StatusFailed || out.Err == nil {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestReport_DoesNotLogPII(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewReporter(Options{
		Credentials: Credentials{AccessToken: "tok", PixelID: "1"},
		Endpoint:    server.URL,
		Logger:      slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	r.Report(context.Background(), testRecord(), Metadata{})

	for _, raw := range []string{"Jane", "Example.com", "555-0100"} {
		if strings.Contains(logs.String(), raw) {
			t.Errorf("logs contain %q: %s", raw, logs.String())
		}
	}
}
