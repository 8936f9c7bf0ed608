package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitas-games/economy/internal/config"
	"github.com/gravitas-games/economy/internal/logger"
	"github.com/gravitas-games/economy/internal/server"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/server.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// No configured logger yet.
		logger.Setup(config.LogConfig{}).Error("failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Log)
	log.Info("starting economy server", "config", configPath, "addr", cfg.Server.Addr())

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.Addr()); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := srv.Shutdown(); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("server stopped")
}
