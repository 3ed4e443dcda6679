// Package httpapi serves the quote intake endpoint over HTTP(S) with gin.
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shineum/quote-intake/internal/intake"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultWriteTimeout = 2 * time.Minute
	requestIDHeader     = "X-Request-Id"
)

// Submission routes. The Netlify path keeps existing static sites working
// unchanged.
const (
	SubmitPath        = "/api/submitForm"
	NetlifySubmitPath = "/.netlify/functions/submitForm"
)

// Intake processes one transport-neutral submission.
type Intake interface {
	Handle(ctx context.Context, req intake.Request) intake.Response
}

// Config captures all inputs required to construct the HTTP server.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	Intake         Intake
	Logger         *slog.Logger
	// MaxBodyBytes caps the request body; zero disables the cap.
	MaxBodyBytes int64
	// TLSConfig enables HTTPS when non-nil.
	TLSConfig            *tls.Config
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	ShutdownGraceTimeout time.Duration
}

// Server hosts the submission endpoint.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires gin, middleware and handlers.
func NewServer(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errors.New("httpapi: listen address is required")
	}
	if cfg.Intake == nil {
		return nil, errors.New("httpapi: intake handler is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("httpapi: logger is required")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(requestLogger(cfg.Logger))

	engine.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.Use(buildCORS(cfg.AllowedOrigins))

	handler := &submitHandler{intake: cfg.Intake, maxBody: cfg.MaxBodyBytes, logger: cfg.Logger}
	engine.Any(SubmitPath, handler.submit)
	engine.Any(NetlifySubmitPath, handler.submit)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		TLSConfig:         cfg.TLSConfig,
		ReadHeaderTimeout: pickDuration(cfg.ReadHeaderTimeout, defaultTimeout),
		WriteTimeout:      pickDuration(cfg.WriteTimeout, defaultWriteTimeout),
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		logger:     cfg.Logger,
	}, nil
}

// Handler exposes the routed handler.
func (server *Server) Handler() http.Handler {
	return server.httpServer.Handler
}

// Start serves until Shutdown. It serves TLS when a TLS config was supplied.
func (server *Server) Start() error {
	var err error
	if server.config.TLSConfig != nil {
		err = server.httpServer.ListenAndServeTLS("", "")
	} else {
		err = server.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (server *Server) Shutdown(ctx context.Context) error {
	timeout := pickDuration(server.config.ShutdownGraceTimeout, defaultTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return server.httpServer.Shutdown(ctx)
}

type submitHandler struct {
	intake  Intake
	maxBody int64
	logger  *slog.Logger
}

func (handler *submitHandler) submit(contextGin *gin.Context) {
	id := contextGin.GetString(requestIDHeader)

	var body []byte
	if contextGin.Request.Method == http.MethodPost {
		reader := io.Reader(contextGin.Request.Body)
		if handler.maxBody > 0 {
			reader = http.MaxBytesReader(contextGin.Writer, contextGin.Request.Body, handler.maxBody)
		}
		var err error
		body, err = io.ReadAll(reader)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				handler.logger.Warn("request body too large", "request_id", id, "limit", tooLarge.Limit)
				contextGin.JSON(http.StatusRequestEntityTooLarge, intake.ResponseBody{
					Message: "Payload Too Large",
					Error:   "upload exceeds the size limit",
				})
				return
			}
			handler.logger.Warn("failed to read request body", "request_id", id, "error", err)
			contextGin.JSON(http.StatusBadRequest, intake.ResponseBody{
				Message: intake.MessageBadRequest,
				Error:   "failed to read request body",
			})
			return
		}
	}

	resp := handler.intake.Handle(contextGin.Request.Context(), intake.Request{
		ID:         id,
		Method:     contextGin.Request.Method,
		Header:     contextGin.Request.Header,
		Body:       body,
		RemoteAddr: contextGin.Request.RemoteAddr,
	})
	contextGin.JSON(resp.Status, resp.Body)
}

func requestID() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		id := uuid.NewString()
		contextGin.Set(requestIDHeader, id)
		contextGin.Header(requestIDHeader, id)
		contextGin.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		started := time.Now()
		contextGin.Next()
		logger.Info(
			"http_request_completed",
			"request_id", contextGin.GetString(requestIDHeader),
			"method", contextGin.Request.Method,
			"path", contextGin.Request.URL.Path,
			"status", contextGin.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

func buildCORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowHeaders:  []string{"Content-Type", "X-Requested-With"},
		AllowMethods:  []string{http.MethodPost, http.MethodOptions},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func pickDuration(candidate time.Duration, fallback time.Duration) time.Duration {
	if candidate <= 0 {
		return fallback
	}
	return candidate
}
