package approvalflow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/RealZimboGuy/approvalflow/internal/config"
	"github.com/RealZimboGuy/approvalflow/internal/controllers"
	"github.com/RealZimboGuy/approvalflow/internal/engine"
	"github.com/RealZimboGuy/approvalflow/internal/events"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/internal/stats"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

// App holds the wired components of a running approval engine.
type App struct {
	Clock        core.Clock
	Store        *repository.Store
	Bus          *events.Bus
	Definitions  *engine.DefinitionService
	Orchestrator *engine.Orchestrator
	Scheduler    *engine.EscalationScheduler
	Stats        *stats.Service
	Projector    *stats.Projector
	Reconciler   *stats.Reconciler
}

// New wires every component over db. The event bus doubles as notifier and
// history sink.
func New(db *sqlx.DB, clock core.Clock) *App {
	if clock == nil {
		clock = core.NewRealClock()
	}
	store := repository.NewStore(db, clock)
	bus := events.NewBus(slog.Default())
	orchestrator := engine.NewOrchestrator(store, engine.Options{
		Clock:           clock,
		Notifier:        bus,
		History:         bus,
		ConflictRetries: config.GetSystemSettingInteger(config.ENGINE_CONFLICT_RETRIES),
		BusinessHours:   engine.BusinessHoursFromConfig(),
	})
	return &App{
		Clock:        clock,
		Store:        store,
		Bus:          bus,
		Definitions:  engine.NewDefinitionService(store, clock),
		Orchestrator: orchestrator,
		Scheduler:    engine.NewEscalationScheduler(store, orchestrator, clock, engine.SchedulerOptionsFromConfig()),
		Stats:        stats.NewService(store, clock),
		Projector:    stats.NewProjector(store),
		Reconciler: stats.NewReconciler(store, clock,
			config.GetSystemSettingDuration(config.STATS_RECONCILE_LOOKBACK, 24*time.Hour)),
	}
}

// Open connects to the configured database, applying migrations first.
func Open() (*App, error) {
	db, err := repository.Open(repository.DatabaseSettingsFromConfig())
	if err != nil {
		return nil, err
	}
	return New(db, nil), nil
}

// Handler builds the HTTP API, optionally on top of an existing mux.
func (a *App) Handler(mux *http.ServeMux) http.Handler {
	api := controllers.NewRouter(controllers.Services{
		Definitions: a.Definitions,
		Instances:   a.Orchestrator,
		Stats:       a.Stats,
		Executors:   a.Store.Executors,
		Users:       a.Store.Users,
		Ping: func(ctx context.Context) error {
			return a.Store.DB().PingContext(ctx)
		},
	}, controllers.NewBaseController(a.Store.Users, a.Clock))
	if mux == nil {
		return api
	}
	mux.Handle("/", api)
	return mux
}

// Run serves HTTP and runs the scheduler, the event router and the stats
// reconciler until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context, mux *http.ServeMux) error {
	router, err := events.NewRouter(a.Bus, a.Projector)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(ctx)
	})
	select {
	case <-router.Running():
	case <-ctx.Done():
		return g.Wait()
	}

	g.Go(func() error {
		return a.Scheduler.Start(ctx)
	})
	g.Go(func() error {
		return a.Reconciler.Start(ctx, config.GetSystemSettingString(config.STATS_RECONCILE_SCHEDULE))
	})

	addr := ":" + config.GetSystemSettingString(config.SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: a.Handler(mux), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() error {
	return errors.Join(a.Bus.Close(), a.Store.Close())
}

// Start boots the engine from configuration and blocks until ctx is done.
func Start(ctx context.Context, mux *http.ServeMux) error {
	app, err := Open()
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(ctx, mux)
}

// SetupLogger installs a tint handler on the default slog logger.
func SetupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
