package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/db"
	httpserver "github.com/yungbote/neurobridge-tutor/internal/http"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      *Config
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *httpserver.Server

	dbService     *db.Service
	otelShutdown  func(context.Context) error
	schedulerLive bool
}

// New connects every dependency. Migrations only run when migrate is set;
// the serve command leaves them to the migrate command in production.
func New(ctx context.Context, cfg *Config, migrate bool) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: cfg.Otel.ServiceName,
		Environment: cfg.Otel.Environment,
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
		Headers:     cfg.Otel.Headers,
		SampleRatio: cfg.Otel.SampleRatio,
	})

	dbs, err := db.Open(db.Config{
		Driver:       cfg.DB.Driver,
		DSN:          cfg.DB.DSN,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		LogLevel:     cfg.DB.LogLevel,
	}, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if migrate {
		if err := dbs.AutoMigrateAll(); err != nil {
			log.Sync()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	theDB := dbs.DB()

	clients, err := wireClients(ctx, theDB, log, cfg)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, clients)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       wireServer(theDB, log, cfg, serviceset),
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve starts the reset scheduler (when enabled) and blocks serving HTTP until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Cfg.Reset.Enabled && !a.schedulerLive {
		if err := a.Services.ResetTrigger.Start(ctx); err != nil {
			return fmt.Errorf("start reset scheduler: %w", err)
		}
		a.schedulerLive = true
	}
	a.Log.Info("Serving HTTP", "addr", a.Cfg.HTTP.Addr)
	return a.Server.Run(ctx, a.Cfg.HTTP.Addr, a.Cfg.HTTP.ShutdownTimeout)
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.schedulerLive {
		a.Services.ResetTrigger.Stop()
		a.schedulerLive = false
	}
	if err := a.Clients.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
