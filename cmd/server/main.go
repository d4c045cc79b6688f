// Command server runs the Campus Link web application.
//
// Configuration comes from the environment (optionally seeded from a .env
// file) and an optional config.yaml; see internal/config for the keys.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/campus-link/internal/config"
	"github.com/sakif/campus-link/internal/server"
)

func main() {
	// A bootstrap logger until LOG_LEVEL is known.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("failed to read .env file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
