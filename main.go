package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/social-analytics/api"
	"github.com/brettboylen/social-analytics/db"
	"github.com/brettboylen/social-analytics/server"
	"github.com/brettboylen/social-analytics/stats"
	"github.com/brettboylen/social-analytics/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting Social Media Analytics")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"api_base_url":     config.API.BaseURL,
		"refresh_interval": config.API.RefreshInterval,
		"fetch_timeout":    config.API.FetchTimeout,
		"max_concurrent":   config.API.MaxConcurrentFetches,
		"server_port":      config.Server.Port,
	}).Info("Configuration loaded")

	database, err := db.NewDatabase(config.Database.Path, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	auth := api.NewAuthService(config.Auth.URL, database, log)
	if config.API.AccessToken != "" {
		if err := auth.SetToken(config.API.AccessToken); err != nil {
			log.WithError(err).Fatal("Failed to store access token")
		}
		log.Info("Access token loaded from environment")
	}

	client := api.NewClient(config.API.BaseURL, auth, config.API.MaxRequestsPerMinute, log)
	fetcher := stats.NewFetcher(client, config.API.MaxConcurrentFetches, log)

	collector := stats.NewCollector(
		fetcher,
		config.API.RefreshIntervalDuration(),
		config.API.FetchTimeoutDuration(),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(collector, auth, config.Server.MaxRequestsPerMinute, log)
	go func() {
		if err := srv.Run(ctx, config.Server.Port); err != nil {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	go func() {
		if err := collector.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Collector stopped unexpectedly")
		}
	}()

	waitForShutdown(cancel, collector, log)
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// waitForShutdown waits for a shutdown signal
func waitForShutdown(cancel context.CancelFunc, collector *stats.Collector, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	collector.Stop()
	cancel()

	time.Sleep(1 * time.Second)
	log.Info("Social Media Analytics stopped")
}
