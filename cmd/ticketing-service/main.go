package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/app"
	"github.com/vladislavdragonenkov/ticketing/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(cfg app.LogConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	log.SetLevel(level)
	return nil
}

// configPath берёт путь из флага, затем из TICKETING_CONFIG.
func configPath(flagValue string, lookup func(string) (string, bool)) string {
	if flagValue != "" {
		return flagValue
	}
	if v, ok := lookup("TICKETING_CONFIG"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func main() {
	var path string
	flag.StringVar(&path, "config", "", "path to YAML config (fallback: TICKETING_CONFIG)")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath(path, os.LookupEnv))
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := setupLogger(cfg.Log); err != nil {
		log.WithError(err).Fatal("invalid log configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"storage_driver": cfg.Storage.Driver,
		"gateway_mode":   cfg.Gateways.Mode,
		"version":        version.String(),
	}).Info("starting ticketing service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service exited with error")
	}

	log.Info("ticketing service stopped")
}
