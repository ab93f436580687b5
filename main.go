package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/badhabitcaps/poker-web/api"
	"github.com/badhabitcaps/poker-web/config"
	"github.com/badhabitcaps/poker-web/hub"
	"github.com/badhabitcaps/poker-web/ingest"
	"github.com/badhabitcaps/poker-web/logging"
	"github.com/badhabitcaps/poker-web/protocol"
	ws "github.com/badhabitcaps/poker-web/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	configPath := pflag.String("config", os.Getenv("RELAY_CONFIG"), "path to an optional YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Error("logger setup error", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcaster := hub.New()
	router := protocol.NewRouter(broadcaster)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.NewServer(router, broadcaster, ws.Handler(broadcaster, router, cfg.WebsocketSettings())),
	}

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				logging.SetLevel(next.LogLevel)
				slog.Info("log level updated", "level", logging.Level.Level())
			})
			if err != nil {
				slog.Warn("config watch stopped", "path", *configPath, "error", err)
			}
		}()
	}

	if cfg.Kafka.Enabled() {
		consumer, err := ingest.NewConsumer(cfg.Kafka.Brokers)
		if err != nil {
			slog.Error("kafka error", "brokers", cfg.Kafka.Brokers, "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		go func() {
			if err := ingest.New(consumer, cfg.Kafka.Topic, router).Run(ctx); err != nil {
				slog.Error("kafka ingest error", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	broadcaster.CloseAll()
}
