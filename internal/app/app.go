// Package app assembles the CheckBell components from a Config. Both the
// HTTP server and the command line tool start from here.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/Cembrun/Checkbell-V2/internal/archive"
	"github.com/Cembrun/Checkbell-V2/internal/config"
	"github.com/Cembrun/Checkbell-V2/internal/dashboard"
	"github.com/Cembrun/Checkbell-V2/internal/notify"
	"github.com/Cembrun/Checkbell-V2/internal/recurring"
	"github.com/Cembrun/Checkbell-V2/internal/repository"
	"github.com/Cembrun/Checkbell-V2/internal/scheduler"
	"github.com/Cembrun/Checkbell-V2/internal/seed"
	"github.com/Cembrun/Checkbell-V2/internal/store"
	"github.com/Cembrun/Checkbell-V2/internal/tracker"
)

type App struct {
	Config       *config.Config
	Store        store.Store
	Mutator      *store.Mutator
	Materializer *recurring.Materializer
	Templates    *recurring.Templates
	Archive      *archive.Archive
	Tracker      *tracker.Service
	Dashboard    *dashboard.Dashboard
	Seeder       *seed.Seeder
	Scheduler    *scheduler.Scheduler

	mirror repository.ArchiveRepository
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: s}

	if cfg.PostgresDSN != "" {
		repo, err := repository.NewPostgresArchiveRepository(cfg.PostgresDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = repo.Close()
			a.Close()
			return nil, err
		}
		a.mirror = repo
		log.Printf("Archive mirror enabled")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.EmailAPIKey != "" {
		notifier = notify.NewSendGridNotifier(cfg.EmailAPIKey, cfg.FromName, cfg.FromAddress, cfg.Recipients())
	}

	a.Mutator = store.NewMutator(s)
	a.Materializer = recurring.NewMaterializer(a.Mutator, recurring.WithLocation(cfg.Location))
	a.Templates = recurring.NewTemplates(a.Mutator)
	a.Archive = archive.New(a.Mutator, a.mirror, cfg.Location)
	a.Tracker = tracker.NewService(a.Mutator, a.Materializer, a.Archive,
		tracker.WithLocation(cfg.Location),
		tracker.WithNotifier(notifier),
	)
	a.Dashboard = dashboard.NewDashboard(s, a.Archive, cfg.Location)
	a.Seeder = seed.New(a.Mutator, cfg.Location)
	a.Scheduler = scheduler.NewScheduler(a.Materializer, cfg.Departments)
	a.Scheduler.SetInterval(cfg.SchedulerInterval)

	return a, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		s, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		return s, nil
	case config.BackendFile:
		s, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		log.Printf("Using data directory %s", s.Dir())
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (a *App) Close() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			log.Printf("failed to close archive mirror: %v", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("failed to close store: %v", err)
		}
	}
}
