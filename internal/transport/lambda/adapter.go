// Package lambda adapts API Gateway proxy events (AWS Lambda, Netlify
// Functions) to the intake pipeline.
package lambda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/shineum/quote-intake/internal/intake"
)

// Intake processes one transport-neutral submission.
type Intake interface {
	Handle(ctx context.Context, req intake.Request) intake.Response
}

// Adapter converts proxy events to intake requests and back.
type Adapter struct {
	intake  Intake
	maxBody int64
	origins []string
	logger  *slog.Logger
}

// NewAdapter creates an Adapter. maxBody caps the decoded body; zero
// disables the cap. allowedOrigins drives the CORS response headers; empty
// allows any origin.
func NewAdapter(in Intake, maxBody int64, allowedOrigins []string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{intake: in, maxBody: maxBody, origins: allowedOrigins, logger: logger}
}

// Handle is the lambda.Start entry point.
func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := event.RequestContext.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	header := toHeader(event)

	if event.HTTPMethod == http.MethodOptions {
		return a.respond(id, header, http.StatusNoContent, nil), nil
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			a.logger.Warn("invalid base64 body", "request_id", id, "error", err)
			return a.respond(id, header, http.StatusBadRequest, &intake.ResponseBody{
				Message: intake.MessageBadRequest,
				Error:   "body is not valid base64",
			}), nil
		}
		body = decoded
	}
	if a.maxBody > 0 && int64(len(body)) > a.maxBody {
		a.logger.Warn("request body too large", "request_id", id, "size", len(body), "limit", a.maxBody)
		return a.respond(id, header, http.StatusRequestEntityTooLarge, &intake.ResponseBody{
			Message: "Payload Too Large",
			Error:   "upload exceeds the size limit",
		}), nil
	}

	resp := a.intake.Handle(ctx, intake.Request{
		ID:         id,
		Method:     event.HTTPMethod,
		Header:     header,
		Body:       body,
		RemoteAddr: event.RequestContext.Identity.SourceIP,
	})
	return a.respond(id, header, resp.Status, &resp.Body), nil
}

func (a *Adapter) respond(id string, reqHeader http.Header, status int, body *intake.ResponseBody) events.APIGatewayProxyResponse {
	headers := map[string]string{"X-Request-Id": id}
	if origin := a.allowOrigin(reqHeader.Get("Origin")); origin != "" {
		headers["Access-Control-Allow-Origin"] = origin
		headers["Access-Control-Allow-Methods"] = "POST, OPTIONS"
		headers["Access-Control-Allow-Headers"] = "Content-Type, X-Requested-With"
		headers["Vary"] = "Origin"
	}

	resp := events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			a.logger.Error("failed to encode response", "request_id", id, "error", err)
			resp.StatusCode = http.StatusInternalServerError
			data = []byte(`{"success":false,"message":"Internal server error"}`)
		}
		headers["Content-Type"] = "application/json"
		resp.Body = string(data)
	}
	return resp
}

func (a *Adapter) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if len(a.origins) == 0 {
		return "*"
	}
	for _, allowed := range a.origins {
		if allowed == origin {
			return origin
		}
	}
	return ""
}

func toHeader(event events.APIGatewayProxyRequest) http.Header {
	header := make(http.Header, len(event.Headers)+len(event.MultiValueHeaders))
	for name, values := range event.MultiValueHeaders {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	for name, value := range event.Headers {
		if header.Get(name) == "" {
			header.Set(name, value)
		}
	}
	return header
}
