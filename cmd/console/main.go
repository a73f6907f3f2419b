package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardroom/console/internal/config"
	"github.com/cardroom/console/internal/console"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("server_url", cfg.Server.URL).
		Str("channel", cfg.Channel).
		Str("http_addr", cfg.HTTP.Addr).
		Msg("starting session console")

	serviceConfig := console.ServiceConfig{
		Channel: cfg.Channel,
		Conn: console.ConnConfig{
			URL:            cfg.Server.URL,
			ConnectTimeout: cfg.ConnectTimeout(),
			WriteTimeout:   cfg.WriteTimeout(),
			MaxMessageSize: console.DefaultConnConfig().MaxMessageSize,
		},
		CountdownSink: func(remaining time.Duration, display string) {
			log.Debug().Str("countdown", display).Msg("countdown tick")
		},
		Notifier: func(msg string) {
			log.Info().Msg(msg)
		},
	}
	if cfg.NATS.URL != "" {
		relayConfig := console.DefaultRelayConfig()
		relayConfig.URL = cfg.NATS.URL
		relayConfig.SubjectPrefix = cfg.NATS.SubjectPrefix
		serviceConfig.Relay = &relayConfig
	}

	svc, err := console.NewService(serviceConfig, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create console service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)

	// Ops HTTP surface
	mux := http.NewServeMux()
	console.NewStatusHandler(svc).RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: c.Handler(mux),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("ops HTTP surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	svc.Stop()
}
