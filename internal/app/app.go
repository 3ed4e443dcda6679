// Package app assembles the intake pipeline from configuration. Both the
// HTTP server and the Lambda function build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/quote-intake/internal/config"
	"github.com/shineum/quote-intake/internal/conversion"
	"github.com/shineum/quote-intake/internal/intake"
	"github.com/shineum/quote-intake/internal/notify"
	"github.com/shineum/quote-intake/internal/provider"
	"github.com/shineum/quote-intake/internal/provider/gmail"
	"github.com/shineum/quote-intake/internal/provider/graph"
	"github.com/shineum/quote-intake/internal/provider/ses"
	"github.com/shineum/quote-intake/internal/provider/smtp"
	"github.com/shineum/quote-intake/internal/provider/stdout"
	"github.com/shineum/quote-intake/internal/submission"
)

// bodySlack is allowed on top of the attachment limit for the text fields
// and multipart framing.
const bodySlack = 1 << 20

// App is a fully wired intake pipeline.
type App struct {
	Config   *config.Config
	Provider provider.Provider
	Handler  *intake.Handler
}

// New validates cfg and wires the provider, dispatcher, reporter and handler.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	prov, err := SelectProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithProvider(cfg, prov, logger), nil
}

// NewWithProvider wires the pipeline around an already constructed provider.
func NewWithProvider(cfg *config.Config, prov provider.Provider, logger *slog.Logger) *App {
	normalizer := submission.Normalizer{Policy: submission.AttachmentPolicy{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxBytes:          cfg.Upload.MaxBytes,
	}}

	dispatcher := notify.NewDispatcher(prov, notify.Settings{
		From:            cfg.Mail.From,
		OperatorAddress: cfg.Mail.OwnerEmail,
		Branding: notify.Branding{
			Name:      cfg.Mail.BrandName,
			Signature: cfg.Mail.BrandSignature,
		},
		SendTimeout: cfg.MailTimeout(),
	}, logger)

	reporter := conversion.NewReporter(conversion.Options{
		Credentials: conversion.Credentials{
			AccessToken: cfg.Meta.AccessToken,
			PixelID:     cfg.Meta.PixelID,
		},
		APIVersion:       cfg.Meta.APIVersion,
		TestEventCode:    cfg.Meta.TestEventCode,
		DefaultSourceURL: cfg.Meta.EventSourceURL,
		Timeout:          cfg.ConversionTimeout(),
		Logger:           logger,
	})

	return &App{
		Config:   cfg,
		Provider: prov,
		Handler:  intake.NewHandler(normalizer, dispatcher, reporter, logger),
	}
}

// MaxBodyBytes is the request body cap handed to the transports.
func (a *App) MaxBodyBytes() int64 {
	return a.Config.Upload.MaxBytes + bodySlack
}

// SelectProvider chooses the email delivery backend based on configuration.
// An explicit PROVIDER takes precedence; otherwise the first configured
// channel is used. Having no channel at all is an error.
func SelectProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	name := cfg.EffectiveProvider()
	autoDetected := cfg.Provider == ""

	switch name {
	case config.ProviderSMTP:
		if !cfg.SMTPConfigured() {
			return nil, fmt.Errorf("smtp provider selected but SMTP_HOST, SMTP_USER and SMTP_PASS are required")
		}
		logger.Info("using smtp provider",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"implicit_tls", cfg.SMTP.Secure,
			"auto_detected", autoDetected,
		)
		return smtp.New(smtp.Config{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			ImplicitTLS: cfg.SMTP.Secure,
			Timeout:     cfg.MailTimeout(),
		}), nil

	case config.ProviderSES:
		if !cfg.SESConfigured() {
			return nil, fmt.Errorf("ses provider selected but SES_REGION is not set")
		}
		logger.Info("using AWS SES provider", "region", cfg.SES.Region, "auto_detected", autoDetected)
		p, err := ses.New(ctx, ses.Config{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.ProviderGraph:
		if !cfg.GraphConfigured() {
			return nil, fmt.Errorf("graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and a sender are required")
		}
		logger.Info("using Microsoft Graph provider", "sender", cfg.Graph.Sender, "auto_detected", autoDetected)
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case config.ProviderGmail:
		if !cfg.GmailConfigured() {
			return nil, fmt.Errorf("gmail provider selected but GMAIL_CREDENTIALS and GMAIL_TOKEN are required")
		}
		logger.Info("using Gmail API provider", "auto_detected", autoDetected)
		p, err := gmail.New(ctx, gmail.Config{
			CredentialsPath: cfg.Gmail.CredentialsFile,
			TokenPath:       cfg.Gmail.TokenFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail provider: %w", err)
		}
		return p, nil

	case config.ProviderStdout:
		logger.Warn("using stdout provider: messages are printed, not delivered")
		return stdout.New(), nil

	case "":
		return nil, fmt.Errorf("no mail channel configured")

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
