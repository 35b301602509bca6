package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/browser"
	"github.com/zulandar/meetbot/internal/config"
	"github.com/zulandar/meetbot/internal/db"
	"github.com/zulandar/meetbot/internal/events"
	"github.com/zulandar/meetbot/internal/logging"
	"github.com/zulandar/meetbot/internal/manager"
	"github.com/zulandar/meetbot/internal/metrics"
	"github.com/zulandar/meetbot/internal/store"
	"gorm.io/gorm"
)

// loadConfig reads the config file. When the default path does not exist
// the built-in defaults are used, so the bot runs without any config.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if configPath == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Out: os.Stderr})
}

// app bundles the wired components shared by join and serve.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *gorm.DB
	store    *store.Store
	registry *prometheus.Registry
	manager  *manager.Manager
	closers  []func() error
}

// newApp connects the database, migrates it and wires the bot dependencies.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       gormDB,
		store:    store.New(gormDB),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}

	deps := bot.Deps{
		Launcher:  browser.NewLauncher(browser.OptionsFromConfig(cfg.Browser), log),
		Store:     a.store,
		Publisher: publisher,
		Metrics:   metrics.New(a.registry),
		Log:       log,
	}
	a.manager = manager.New(bot.FromConfig(cfg), cfg.Bot, deps)
	return a, nil
}

// publisher dials Redis when an address is configured.
func (a *app) publisher(ctx context.Context) (events.Publisher, error) {
	if a.cfg.Redis.Addr == "" {
		return events.Nop{}, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := events.Dial(dialCtx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.log.Info().Str("addr", a.cfg.Redis.Addr).Msg("publishing lifecycle events to redis")
	return events.NewRedisPublisher(client, a.cfg.Redis.ChannelPrefix), nil
}

// close stops every live session and releases connections.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := a.manager.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("shutdown sessions")
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
