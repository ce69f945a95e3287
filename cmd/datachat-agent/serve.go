package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/floegence/datachat-agent/internal/app"
)

// ServeCmd starts the HTTP server and blocks until SIGINT or SIGTERM.
type ServeCmd struct {
	configPath

	Host string `long:"host" description:"override the listen host"`
	Port int    `short:"p" long:"port" description:"override the listen port"`
}

func (s *ServeCmd) Execute(_ []string) error {
	cfg, log, err := loadRuntime(s.path)
	if err != nil {
		return err
	}
	if s.Host != "" {
		cfg.Host = s.Host
	}
	if s.Port > 0 {
		cfg.Port = s.Port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Deps{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	log.Info("datachat-agent starting", "version", Version, "commit", Commit, "addr", cfg.Addr(), "model", cfg.Model)
	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info("datachat-agent stopped")
	return nil
}
