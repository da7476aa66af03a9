// Package app assembles a running syncgw from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/entrybook/syncgw/internal/alarm"
	"github.com/entrybook/syncgw/internal/attachment"
	"github.com/entrybook/syncgw/internal/config"
	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/notify"
	"github.com/entrybook/syncgw/internal/recurrence"
	"github.com/entrybook/syncgw/internal/store/db"
	"github.com/entrybook/syncgw/internal/transport/rest"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Store   *db.DB
	Files   *attachment.Manager
	Grants  *attachment.Grants
	Janitor *attachment.Janitor
	Hub     *notify.Hub
	Gateway *gateway.Gateway
	Server  *rest.Server

	base   *slog.Logger
	logger *slog.Logger
}

// New opens and migrates the store and wires every component. Nothing runs
// in the background until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := db.OpenWithOptions(cfg.DB.Path, db.Options{
		BusyTimeout:  cfg.DB.BusyTimeout,
		MaxOpenConns: cfg.DB.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	a, err := wire(store, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func wire(store *db.DB, cfg *config.Config, logger *slog.Logger) (*App, error) {
	files, err := attachment.NewManager(attachment.Config{
		Dir:        cfg.Attachments.Dir,
		Authority:  cfg.Attachments.Authority,
		SweepGrace: cfg.Attachments.SweepGrace,
	}, logger)
	if err != nil {
		return nil, err
	}
	grants := attachment.NewGrants(cfg.Attachments.GrantTTL)

	janitor, err := attachment.NewJanitor(files, store, attachment.JanitorConfig{
		Debounce: cfg.Attachments.SweepDebounce,
		Interval: cfg.Attachments.SweepInterval,
	}, logger)
	if err != nil {
		return nil, err
	}
	janitor.PruneGrants(grants)

	hub := notify.NewHub(notify.Config{
		Buffer:       cfg.Notify.Buffer,
		WriteTimeout: cfg.Notify.WriteTimeout,
	}, logger)

	alarms := alarm.New(hub, logger)
	engine := recurrence.NewEngine(recurrence.Limits{
		MaxInstances: cfg.Recurrence.MaxInstances,
		HorizonYears: cfg.Recurrence.HorizonYears,
	}, alarms, logger)

	gw, err := gateway.New(store, gateway.Config{
		OwnerCaller:      cfg.Gateway.OwnerCaller,
		LocalAccountType: cfg.Gateway.LocalAccountType,
	}, gateway.Deps{
		Recurrence: engine,
		Alarms:     alarms,
		Files:      files,
		Grants:     grants,
		Sweeper:    janitor,
		Observers:  []gateway.Observer{hub},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	server := rest.NewServer(rest.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}, gw, hub, logger)

	return &App{
		Config:  cfg,
		Store:   store,
		Files:   files,
		Grants:  grants,
		Janitor: janitor,
		Hub:     hub,
		Gateway: gw,
		Server:  server,
		base:    logger,
		logger:  logger.With("component", "app"),
	}, nil
}

// Run starts the background workers and the HTTP server and blocks until
// ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.Hub.Start()
	a.Janitor.Start(ctx)

	var sizes *attachment.SizeWatcher
	if a.Config.Attachments.WatchSizes {
		w, err := attachment.NewSizeWatcher(a.Files, a.Store, a.base)
		if err != nil {
			a.Janitor.Stop()
			a.Hub.Stop()
			return err
		}
		if err := w.Start(); err != nil {
			a.Janitor.Stop()
			a.Hub.Stop()
			return err
		}
		sizes = w
	}

	if err := a.Server.Start(); err != nil {
		a.stopWorkers(sizes)
		return err
	}
	a.logger.Info("syncgw running", "addr", a.Server.Addr(), "db", a.Store.Path())

	<-ctx.Done()
	a.logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Websocket clients hold their connections open; drop them before
	// the server waits for idle connections.
	a.Hub.Stop()
	err := a.Server.Stop(shutdownCtx)
	a.stopWorkers(sizes)
	return err
}

func (a *App) stopWorkers(sizes *attachment.SizeWatcher) {
	if sizes != nil {
		if err := sizes.Stop(); err != nil {
			a.logger.Warn("failed to stop size watcher", "error", err)
		}
	}
	a.Janitor.Stop()
	a.Hub.Stop()
}

// Close releases the store.
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// ErrNoAccount is returned by commands that need an account and got none.
var ErrNoAccount = errors.New("account name and type are required")

// Request builds a gateway request for an operator command acting as the
// owning application.
func (a *App) Request(accountName, accountType, path string) (gateway.Request, error) {
	if accountName == "" || accountType == "" {
		return gateway.Request{}, ErrNoAccount
	}
	return gateway.Request{
		Path:        path,
		SyncAdapter: true,
		AccountName: accountName,
		AccountType: accountType,
		Caller:      a.Config.Gateway.OwnerCaller,
	}, nil
}
