// Package intake sequences one quote submission: decode the multipart body,
// normalize it, deliver both notifications and report the conversion. It is
// transport-neutral; HTTP and serverless adapters translate to and from
// Request and Response.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shineum/quote-intake/internal/conversion"
	"github.com/shineum/quote-intake/internal/formdata"
	"github.com/shineum/quote-intake/internal/notify"
	"github.com/shineum/quote-intake/internal/submission"
)

// Response messages.
const (
	MessageSuccess          = "Quote request submitted successfully"
	MessageMethodNotAllowed = "Method Not Allowed"
	MessageBadRequest       = "Invalid request"
	MessageInternalError    = "Internal server error"
)

// Request is the transport-neutral form of an inbound submission.
type Request struct {
	ID         string
	Method     string
	Header     http.Header
	Body       []byte
	RemoteAddr string
}

// ResponseBody is serialized as the JSON response.
type ResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Response pairs an HTTP status with its body.
type Response struct {
	Status int
	Body   ResponseBody
}

// Dispatcher delivers the notifications for a record.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec submission.Record) (notify.Result, error)
}

// Reporter reports a conversion. It must not fail the request.
type Reporter interface {
	Report(ctx context.Context, rec submission.Record, meta conversion.Metadata) conversion.Outcome
}

// Handler runs the intake pipeline. It holds no per-request state and is
// safe for concurrent use.
type Handler struct {
	normalizer submission.Normalizer
	dispatcher Dispatcher
	reporter   Reporter
	logger     *slog.Logger
}

// NewHandler wires the pipeline stages. reporter may be nil.
func NewHandler(normalizer submission.Normalizer, dispatcher Dispatcher, reporter Reporter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		normalizer: normalizer,
		dispatcher: dispatcher,
		reporter:   reporter,
		logger:     logger,
	}
}

// Handle processes req and always returns a Response.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	logger := h.logger
	if req.ID != "" {
		logger = logger.With("request_id", req.ID)
	}
	started := time.Now()

	if req.Method != http.MethodPost {
		logger.Info("rejected method", "method", req.Method)
		return Response{
			Status: http.StatusMethodNotAllowed,
			Body:   ResponseBody{Message: MessageMethodNotAllowed},
		}
	}

	parts, err := formdata.Decode(req.Body, req.Header.Get("Content-Type"))
	if err != nil {
		logger.Warn("malformed submission", "stage", "decode", "error", err)
		return failure(http.StatusBadRequest, MessageBadRequest, "malformed multipart body")
	}

	rec, err := h.normalizer.Normalize(parts)
	if err != nil {
		logger.Warn("invalid submission", "stage", "normalize", "error", err)
		var verr *submission.ValidationError
		if errors.As(err, &verr) {
			return failure(http.StatusBadRequest, MessageBadRequest, verr.Error())
		}
		return failure(http.StatusBadRequest, MessageBadRequest, "invalid submission")
	}

	if _, err := h.dispatcher.Dispatch(ctx, rec); err != nil {
		if errors.Is(err, submission.ErrValidation) {
			logger.Warn("invalid submission", "stage", "dispatch", "error", err)
			return failure(http.StatusBadRequest, MessageBadRequest, err.Error())
		}
		logger.Error("notification delivery failed", "stage", "dispatch", "error", err)
		return failure(http.StatusInternalServerError, MessageInternalError, "failed to send notification email")
	}

	if h.reporter != nil {
		outcome := h.reporter.Report(ctx, rec, conversion.MetadataFromRequest(req.Header, req.RemoteAddr))
		logger.Debug("conversion outcome", "status", outcome.Status)
	}

	_, hasFile := rec.Attachment()
	logger.Info("quote request accepted",
		"has_attachment", hasFile,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return Response{
		Status: http.StatusOK,
		Body:   ResponseBody{Success: true, Message: MessageSuccess},
	}
}

func failure(status int, message, detail string) Response {
	return Response{
		Status: status,
		Body:   ResponseBody{Message: message, Error: detail},
	}
}
