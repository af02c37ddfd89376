package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kivaquery"
	"kivaquery/kiva"
)

// app holds everything a command needs, built from the loaded config
type app struct {
	config  kivaquery.Config
	logger  *zap.Logger
	client  kiva.Client
	results *kivaquery.ResultManager
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	config, err := kivaquery.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := config.LogLevel
	if verbose {
		level = "debug"
	}

	logger, err := kivaquery.NewLogger(level)
	if err != nil {
		return nil, err
	}

	client, err := kiva.NewClient(config.KivaAppId)
	if err != nil {
		return nil, fmt.Errorf("unable to create kiva client: %w", err)
	}
	if config.KivaBaseURL != "" {
		client.SetBaseURL(config.KivaBaseURL)
	}
	client.SetLogger(logger)

	a := &app{config: config, logger: logger, client: client}

	index, err := a.indexStore(ctx)
	if err != nil {
		return nil, err
	}

	a.results = kivaquery.NewResultManager(client, config.QueryCacheDir, index, logger)
	if err := a.results.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("unable to load query cache: %w", err)
	}

	return a, nil
}

// indexStore keeps the cache index in redis when an address is configured and in a json file otherwise
func (a *app) indexStore(ctx context.Context) (kivaquery.IndexStore, error) {
	if a.config.RedisAddr == "" {
		return kivaquery.FileIndexStore{Path: a.config.QueryCache}, nil
	}

	store, err := kivaquery.NewRedisIndexStore(ctx, a.config.Redis())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	a.logger.Debug("using redis query cache index", zap.String("addr", a.config.RedisAddr))
	return store, nil
}

func (a *app) fetcher() kivaquery.Fetcher {
	return kivaquery.NewFetcher(a.client, a.results, a.logger)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("unable to close resource", zap.Error(err))
		}
	}
	a.logger.Sync()
}
