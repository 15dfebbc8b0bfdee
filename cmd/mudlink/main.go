// Package main is the entry point for mudlink.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/samdwyer/mudlink/internal/game"
	"github.com/samdwyer/mudlink/internal/telemetry"
)

func main() {
	// Not fatal: the variables may be set directly.
	envErr := godotenv.Load()

	cfg, err := game.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mudlink: %v\n", err)
		os.Exit(2)
	}

	// The terminal belongs to the UI, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mudlink: open log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}

	instanceID := uuid.NewString()
	ctx := context.Background()

	if telemetry.Honeycomb(cfg.HoneycombAPIKey, cfg.HoneycombDataset) {
		shutdown, err := telemetry.Setup(ctx, instanceID)
		if err != nil {
			log.Warn().Err(err).Msg("telemetry setup failed; running without it")
		} else {
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("telemetry shutdown")
				}
			}()
		}
	}

	g, err := game.New(cfg, instanceID)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize")
		fmt.Fprintf(os.Stderr, "mudlink: %v\n", err)
		os.Exit(1)
	}

	log.Info().Str("api", cfg.APIBase).Str("instance", instanceID).Msg("starting")
	if err := g.Run(ctx); err != nil {
		log.Error().Err(err).Msg("client exited")
	}
}
