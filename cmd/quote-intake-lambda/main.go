// Package main runs the intake pipeline as an AWS Lambda (or Netlify)
// function behind an API Gateway proxy integration.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/shineum/quote-intake/internal/app"
	"github.com/shineum/quote-intake/internal/config"
	"github.com/shineum/quote-intake/internal/logging"
	lambdaapi "github.com/shineum/quote-intake/internal/transport/lambda"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	pipeline, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	adapter := lambdaapi.NewAdapter(pipeline.Handler, pipeline.MaxBodyBytes(), cfg.HTTP.AllowedOrigins, logger)
	logger.Info("starting quote-intake lambda", "provider", pipeline.Provider.Name())
	lambda.Start(adapter.Handle)
}
