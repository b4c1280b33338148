package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"ubi-pricer/internal/api"
	"ubi-pricer/internal/storage"
)

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; storage endpoints disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	var rowStore storage.PricedRowStore
	var runStore storage.RunStore
	if store != nil {
		rowStore = store
		runStore = store
	}

	server := api.NewServer(api.Options{
		ListenAddr:      a.Config.API.ListenAddr,
		ReadTimeout:     a.Config.API.ReadTimeout,
		WriteTimeout:    a.Config.API.WriteTimeout,
		ShutdownTimeout: a.Config.API.ShutdownTimeout,
	}, pipeline, engine, rowStore, runStore, a.Logger)

	err = server.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
