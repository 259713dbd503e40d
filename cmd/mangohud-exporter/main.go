package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabrielpetry/MangoHud/exporter"
	"github.com/gabrielpetry/MangoHud/internal/config"
	"github.com/gabrielpetry/MangoHud/internal/history"
	"github.com/gabrielpetry/MangoHud/internal/logger"
	"github.com/gabrielpetry/MangoHud/internal/pid"
	"github.com/gabrielpetry/MangoHud/internal/sampler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logger.DefaultLevel
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if cfg.PIDFile != "" {
		if err := pid.Write(cfg.PIDFile); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write PID file")
		}
		defer func() {
			if err := pid.Remove(cfg.PIDFile); err != nil {
				logger.Error().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	smp := sampler.New(sampler.Config{GPUIndex: cfg.GPUIndex})
	defer smp.Shutdown()

	recorder, err := history.NewService(cfg.HistoryConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize snapshot history")
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close snapshot history")
		}
	}()

	exp := exporter.New(cfg.ExporterConfig(), smp, exporter.WithRecorder(recorder))
	exp.Start()
	defer exp.Stop()

	waitForSignal()
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
}
