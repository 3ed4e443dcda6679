// Package main is the entry point for the quote intake HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/quote-intake/internal/app"
	"github.com/shineum/quote-intake/internal/config"
	"github.com/shineum/quote-intake/internal/logging"
	tlsutil "github.com/shineum/quote-intake/internal/tls"
	"github.com/shineum/quote-intake/internal/transport/httpapi"
)

var version = "dev"

func main() {
	var configPath, envFile string

	rootCmd := &cobra.Command{
		Use:     "quote-intake",
		Short:   "Quote request intake: multipart form to email notifications",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	rootCmd.AddCommand(serveCmd(&configPath, &envFile))
	rootCmd.AddCommand(checkConfigCmd(&configPath, &envFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the submission endpoint over HTTP(S)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, *envFile)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Logging.Level)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			pipeline, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			serverCfg := httpapi.Config{
				ListenAddr:     cfg.HTTP.Listen,
				AllowedOrigins: cfg.HTTP.AllowedOrigins,
				Intake:         pipeline.Handler,
				Logger:         logger,
				MaxBodyBytes:   pipeline.MaxBodyBytes(),
			}
			if cfg.TLS.CertFile != "" {
				serverCfg.TLSConfig, err = tlsutil.LoadServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
				if err != nil {
					return fmt.Errorf("failed to setup TLS: %w", err)
				}
			}

			server, err := httpapi.NewServer(serverCfg)
			if err != nil {
				return err
			}

			logger.Info("starting quote-intake",
				"listen", cfg.HTTP.Listen,
				"provider", pipeline.Provider.Name(),
				"tls", serverCfg.TLSConfig != nil,
				"conversions_enabled", cfg.ConversionsConfigured(),
			)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
				logger.Info("received signal, initiating shutdown")
				if err := server.Shutdown(context.Background()); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			}

			logger.Info("quote-intake stopped")
			return nil
		},
	}
}

func checkConfigCmd(configPath, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and print the selected delivery channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, *envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider: %s\n", cfg.EffectiveProvider())
			fmt.Fprintf(out, "operator: %s\n", cfg.Mail.OwnerEmail)
			fmt.Fprintf(out, "from: %s\n", cfg.Mail.From)
			fmt.Fprintf(out, "conversions: %t\n", cfg.ConversionsConfigured())
			fmt.Fprintf(out, "max upload bytes: %d\n", cfg.Upload.MaxBytes)
			return nil
		},
	}
}

// loadConfig reads the dotenv file, then loads configuration from the YAML
// file (with env overrides) or from environment variables alone.
func loadConfig(path, envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
