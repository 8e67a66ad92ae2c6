package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vrcrugby/subgate/internal/mercadopago"
	"github.com/vrcrugby/subgate/internal/platform/config"
	"github.com/vrcrugby/subgate/internal/platform/server"
	"github.com/vrcrugby/subgate/internal/platform/telemetry"
	"github.com/vrcrugby/subgate/internal/subscriptions"
	"github.com/vrcrugby/subgate/internal/webhook"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	slog.Info("subgate starting",
		"version", version,
		"port", cfg.Server.Port,
	)

	metrics := buildMetrics()

	client, err := buildRemoteClient(cfg.MercadoPago, metrics)
	if err != nil {
		return fmt.Errorf("building mercadopago client: %w", err)
	}

	verifier := buildVerifier(cfg.MercadoPago.WebhookSecret, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		SubscriptionHandler: subscriptions.NewHandler(client, buildSubscriptionOptions(cfg.App), logger),
		WebhookHandler:      webhook.NewHandler(verifier, client, logger, metrics),
		Metrics:             metrics,
		Logger:              logger,
		CORSAllowedOrigins:  cfg.CORS.Origins(),
	})

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("server ready", "addr", addr, "webhook_secret_configured", verifier.Configured())
	return srv.Start(ctx)
}

// buildMetrics adds the Go runtime and process collectors to the gateway's own series.
func buildMetrics() *telemetry.Metrics {
	metrics := telemetry.NewMetrics()
	metrics.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics
}

func buildRemoteClient(cfg config.MercadoPagoConfig, metrics *telemetry.Metrics) (*mercadopago.Client, error) {
	return mercadopago.NewClient(mercadopago.Config{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		Timeout:     cfg.Timeout(),
		Metrics:     metrics,
	})
}

// buildVerifier never fails: without a secret every notification is reported
// with signature_ok=false.
func buildVerifier(secret string, logger *slog.Logger) *webhook.Verifier {
	verifier := webhook.NewVerifier(secret)
	if !verifier.Configured() {
		logger.Warn("mercadopago webhook secret not configured, signatures will not verify")
	}
	return verifier
}

func buildSubscriptionOptions(cfg config.AppConfig) subscriptions.Options {
	return subscriptions.Options{
		BaseURL:  cfg.BaseURL,
		Currency: cfg.Currency,
	}
}
