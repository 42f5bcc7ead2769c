package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hearme/internal/bootstrap"
	"hearme/internal/config"
	hlog "hearme/internal/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := hlog.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)

	services, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	app := NewApp(services)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("store", cfg.Store.Driver).Msg("listening")
		errCh <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	return app.Shutdown(cfg.Server.ShutdownTimeout)
}
