// Package app wires the service together: config, logging, transport,
// dispatch engine, scheduled reports and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"jetstream/internal/auth"
	"jetstream/internal/config"
	"jetstream/internal/dispatch"
	"jetstream/internal/jobs"
	"jetstream/internal/notes"
	"jetstream/internal/notifier"
	"jetstream/internal/oplog"
	"jetstream/internal/report"
	"jetstream/internal/sender/appsflyer"
	"jetstream/internal/server"
	"jetstream/internal/storage"
	"jetstream/internal/transport"
	"jetstream/internal/transport/telegram"
	"jetstream/pkg/logx"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    zerolog.Logger

	engine  *dispatch.Engine
	reports *report.Service
	notif   *notifier.Service
	store   storage.Store
	httpSrv *http.Server

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New loads the config and builds every component. Nothing is started
// yet; Start arms the schedulers and binds the listener.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath, zerolog.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, root := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a := &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    root,
	}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	// Telegram is optional. Without a token every notification becomes
	// a no-op and the service runs log-only.
	var sender transport.Sender
	if cfg.Telegram.Token != "" {
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	} else {
		a.log.Warn().Msg("telegram token not set, notifications disabled")
	}

	a.notif = notifier.New(notifier.Config{
		ChatID:     cfg.Telegram.ChatID,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, sender, a.log.With().Str("component", "notifier").Logger())

	reg := jobs.NewRegistry()
	logs := oplog.NewBuffer(a.log.With().Str("component", "oplog").Logger())
	client := appsflyer.NewClient(cfg.Delivery.BaseURL)

	a.engine = dispatch.NewEngine(reg, logs, client, a.notif,
		a.log.With().Str("component", "dispatch").Logger())
	a.reports = report.New(reg, a.notif,
		a.log.With().Str("component", "report").Logger())

	np := notes.NewStore(cfg.Notes.Path, cfg.Notes.Key,
		a.log.With().Str("component", "notes").Logger())

	as := auth.New(auth.Config{
		Username:      cfg.Admin.Username,
		Password:      cfg.Admin.Password,
		PasswordHash:  cfg.Admin.PasswordHash,
		SessionSecret: cfg.Session.Secret,
		SessionTTL:    cfg.SessionTTL(),
	})
	if cfg.Session.Secret == "" {
		a.log.Warn().Msg("session secret not set, issued tokens are unsigned-equivalent")
	}

	if cfg.Storage != nil {
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: cfg.StorageBusyTimeout(),
		}, a.log.With().Str("component", "storage").Logger())
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store = st
	}

	srv := server.New(a.engine, reg, logs, np, as, a.store,
		int(cfg.SessionTTL().Seconds()),
		a.log.With().Str("component", "http").Logger())
	a.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Start binds the listener, arms the report schedulers and notifies
// systemd plus the operator chat.
func (a *App) Start(ctx context.Context) error {
	if err := a.reports.Start(); err != nil {
		return fmt.Errorf("reports: %w", err)
	}

	go func() {
		a.log.Info().Str("addr", a.httpSrv.Addr).Msg("http server listening")
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("http server failed")
		}
	}()

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		err := a.cfgMgr.Watch(wctx, a.onConfigReload)
		if err != nil {
			a.log.Warn().Err(err).Msg("config watcher exited")
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go func() { _ = a.notif.ServerStarted(context.Background(), a.httpSrv.Addr) }()
	return nil
}

// onConfigReload applies the hot-reloadable subset. Anything else
// (listen address, telegram token, storage driver) needs a restart.
func (a *App) onConfigReload(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.log.Info().Str("level", cfg.Logging.Level).Msg("logging config applied")
}

// Stop shuts everything down in dependency order: stop accepting HTTP,
// cancel job tickers, drain schedulers, close the audit store.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchCancel != nil {
		a.watchCancel()
		<-a.watchDone
	}

	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpSrv.Shutdown(sctx); err != nil {
		firstErr = err
	}
	if err := a.engine.Shutdown(sctx); err != nil && firstErr == nil {
		firstErr = err
	}
	a.reports.Stop()
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = a.logSvc.Close()
	return firstErr
}
