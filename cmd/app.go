package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/desktoppet/api"
	"github.com/kasuganosora/desktoppet/api/rest"
	"github.com/kasuganosora/desktoppet/audit"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/config"
	dbadapter "github.com/kasuganosora/desktoppet/db"
	"github.com/kasuganosora/desktoppet/game/fsm"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/script"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/kasuganosora/desktoppet/persistence"
	"github.com/kasuganosora/desktoppet/plugin/hook"
	"github.com/kasuganosora/desktoppet/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	leaseTTL       = 15 * time.Second
	leaseRefresh   = 5 * time.Second
	headlessPoll   = time.Second
	retuneDebounce = 250 * time.Millisecond
	closeTimeout   = 5 * time.Second
)

// app owns every long-lived component of one daemon run.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger

	db      *gorm.DB // nil unless state or journal use it
	store   cache.Store
	pubsub  cache.PubSub
	lease   *cache.Lease
	journal *audit.Journal // nil when disabled
	saver   *persistence.Autosaver

	env       *sensor.Published
	inbox     *input.Inbox
	hooks     *hook.Center
	sim       *sim.Simulation
	publisher *sim.Publisher
	loop      *scheduler.Loop
	sched     *scheduler.Scheduler
}

func rates(n config.NeedsConfig) needs.Rates {
	return needs.Rates{Hunger: n.HungerRate, Energy: n.EnergyRate, Boredom: n.BoredomRate, Affection: n.AffectionRate}
}

func machineConfig(s config.SimConfig) fsm.Config {
	return fsm.Config{WalkSpeed: s.WalkSpeed, ApproachDistance: s.ApproachDistance}
}

func tuning(cfg *config.Config) sim.Tuning {
	return sim.Tuning{Margin: cfg.Sim.HysteresisMargin, Rates: rates(cfg.Needs), Machine: machineConfig(cfg.Sim)}
}

// newApp opens storage, restores state and assembles the simulation. On
// error everything opened so far is closed again.
func newApp(ctx context.Context, cfg *config.Config, cfgPath string, logger *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, cfgPath: cfgPath, logger: logger}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	// ---- Storage ----
	if cfg.Persistence.Backend == "db" || cfg.Persistence.Journal {
		if a.db, err = dbadapter.Open(cfg.Database, logger.Named("db")); err != nil {
			return a, err
		}
		logger.Info("database ready", zap.String("mode", cfg.Database.Mode))
	}
	if a.store, a.pubsub, err = cache.New(cfg.Cache); err != nil {
		return a, fmt.Errorf("cache: %w", err)
	}

	owner := uuid.NewString()
	lease := cache.NewLease(a.store, "pet:lease:"+cfg.Persistence.Key, owner, leaseTTL)
	if err = lease.Acquire(ctx); err != nil {
		if errors.Is(err, cache.ErrLeaseHeld) {
			return a, fmt.Errorf("pet %q is already running elsewhere: %w", cfg.Persistence.Key, err)
		}
		return a, err
	}
	a.lease = lease

	var store persistence.Store = persistence.Discard{}
	switch cfg.Persistence.Backend {
	case "db":
		store = persistence.NewDBStore(a.db)
	case "cache":
		store = persistence.NewCacheStore(a.store)
	}
	var journal sim.Journal
	if cfg.Persistence.Journal {
		a.journal = audit.New(a.db, a.store, cfg.Persistence.Key, logger.Named("audit"))
		journal = a.journal
	}

	// ---- Behaviors ----
	engine := script.NewEngine(cfg.Script.Timeout, logger.Named("script"))
	catalog, err := buildCatalog(cfg, engine, logger)
	if err != nil {
		return a, err
	}
	logger.Info("catalog sealed", zap.Strings("behaviors", catalog.IDs()))

	// ---- Simulation ----
	fallback := geom.Rect{W: cfg.Sensor.FallbackWidth, H: cfg.Sensor.FallbackHeight}
	a.env = sensor.NewPublished(cfg.Sensor.MaxAge)
	a.inbox = input.NewInbox(cfg.Sim.InboxSize)
	a.hooks = hook.NewCenter()
	a.registerHooks()
	a.publisher = sim.NewPublisher(api.FrameSink(a.pubsub), logger.Named("publisher"))

	initial := needs.State{
		Hunger:    cfg.Needs.InitialHunger,
		Energy:    cfg.Needs.InitialEnergy,
		Boredom:   cfg.Needs.InitialBoredom,
		Affection: cfg.Needs.InitialAffection,
	}
	a.sim, err = sim.New(sim.Options{
		Catalog:  catalog,
		Sensor:   sensor.New(a.env, fallback, logger.Named("sensor")),
		Needs:    needs.NewModel(initial, rates(cfg.Needs)),
		Inbox:    a.inbox,
		Margin:   cfg.Sim.HysteresisMargin,
		Machine:  machineConfig(cfg.Sim),
		Renderer: a.publisher,
		Journal:  journal,
		Hooks:    a.hooks,
		Logger:   logger.Named("sim"),
	})
	if err != nil {
		return a, err
	}

	switch st, lerr := store.Load(ctx, cfg.Persistence.Key); {
	case lerr == nil:
		a.sim.ImportState(st)
		logger.Info("state restored", zap.String("key", cfg.Persistence.Key), zap.Time("saved_at", st.SavedAt))
	case errors.Is(lerr, persistence.ErrNoState):
		logger.Info("no saved state, starting fresh", zap.String("key", cfg.Persistence.Key))
	default:
		logger.Warn("state restore failed, starting fresh", zap.Error(lerr))
	}
	a.saver = persistence.NewAutosaver(store, cfg.Persistence.Key, a.sim.LatestState, logger.Named("autosave"))

	a.loop = scheduler.NewLoop(cfg.Sim.TickRate, cfg.Sim.MaxDelta, a.sim.Step, logger.Named("loop"))
	a.sched = scheduler.New(logger.Named("scheduler"))
	return a, nil
}

func (a *app) registerHooks() {
	log := a.logger.Named("hooks")
	a.hooks.Register(hook.AfterBehaviorSwitch, 100, "log", func(_ context.Context, _ string, data any) (any, error) {
		if ev, ok := data.(*hook.SwitchEvent); ok {
			log.Info("behavior switched",
				zap.String("from", ev.From),
				zap.String("to", ev.To),
				zap.String("reason", ev.Reason),
				zap.Float64("utility", ev.Utility))
		}
		return data, nil
	})
	a.hooks.Register(hook.OnUserEvent, 100, "log", func(_ context.Context, _ string, data any) (any, error) {
		if ev, ok := data.(*hook.UserEvent); ok {
			log.Debug("user event", zap.String("kind", ev.Kind), zap.Float64("magnitude", ev.Magnitude))
		}
		return data, nil
	})
}

// run drives the pet until ctx ends, the overlay asks to exit, or the
// lease is lost.
func (a *app) run(ctx context.Context) error {
	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	a.sched.AddTicker("autosave", a.cfg.Sim.SaveInterval, func(ctx context.Context) { a.saver.Tick(ctx) })
	a.sched.AddTicker("lease_refresh", leaseRefresh, func(tctx context.Context) {
		if err := a.lease.Refresh(tctx); err != nil {
			a.logger.Error("lease refresh failed", zap.Error(err))
			if errors.Is(err, cache.ErrLeaseLost) {
				stop(err)
			}
		}
	})
	a.watchConfig(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.loop.Run(gctx) })
	g.Go(func() error { a.publisher.Run(gctx); return nil })

	if a.cfg.Server.Bridge {
		deps := api.Deps{
			Server:   a.cfg.Server,
			Security: a.cfg.Security,
			Env:      a.env,
			Inbox:    a.inbox,
			Frames:   a.publisher,
			PubSub:   a.pubsub,
			Admin: rest.AdminDeps{
				Loop:         a.loop,
				Tasks:        a.sched,
				Saver:        a.saver,
				InboxDropped: a.inbox.Dropped,
			},
			Exit:   func() { stop(errExitRequested) },
			Logger: a.logger,
		}
		if a.journal != nil {
			deps.Journal = a.journal
			deps.Admin.JournalDropped = a.journal.Dropped
			deps.Admin.RunID = a.journal.RunID()
		}
		srv := api.NewServer(a.cfg.Server.Addr, api.NewRouter(gctx, deps), a.cfg.Server.ShutdownTimeout, a.logger)
		g.Go(func() error { return srv.Run(gctx) })
	} else {
		// Headless: a fixed desktop stands in for the overlay.
		screen := geom.Rect{W: a.cfg.Sensor.FallbackWidth, H: a.cfg.Sensor.FallbackHeight}
		poller := sensor.NewPoller(sensor.Static{Screen: screen, CursorPos: screen.Center()}, a.env, headlessPoll, a.logger.Named("poller"))
		g.Go(func() error { poller.Run(gctx); return nil })
	}

	a.logger.Info("pet running",
		zap.String("key", a.cfg.Persistence.Key),
		zap.Duration("tick", a.loop.Interval()),
		zap.Bool("bridge", a.cfg.Server.Bridge))

	err := g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, errExitRequested) {
		a.logger.Info("exit requested by overlay")
	} else if errors.Is(cause, cache.ErrLeaseLost) {
		err = errors.Join(err, cause)
	}
	return err
}

var errExitRequested = errors.New("exit requested")

// watchConfig hot-reloads tunables until ctx ends. Reloads are debounced
// because editors write files in several steps. The file watcher itself
// cannot be stopped, so every reload checks ctx first.
func (a *app) watchConfig(ctx context.Context) {
	if a.cfgPath == "" {
		return
	}
	err := config.Watch(a.cfgPath, func(cfg *config.Config, err error) {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.logger.Warn("config reload rejected", zap.Error(err))
			return
		}
		a.sched.AddDelay("retune", retuneDebounce, func(context.Context) {
			if ctx.Err() != nil {
				return
			}
			a.inbox.Push(input.Event{Kind: input.KindRetune, Payload: tuning(cfg)})
			a.logger.Info("tunables reloaded", zap.Float64("margin", cfg.Sim.HysteresisMargin))
		})
	})
	if err != nil {
		a.logger.Debug("config watch disabled", zap.Error(err))
	}
}

// close flushes state and releases resources. Safe on a partially built app.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if a.sched != nil {
		a.sched.Stop()
	}
	if a.saver != nil {
		if _, err := a.saver.Save(ctx); err != nil {
			a.logger.Error("final save failed", zap.Error(err))
		}
	}
	if a.journal != nil {
		a.journal.Stop(ctx)
	}
	if a.lease != nil {
		if err := a.lease.Release(ctx); err != nil {
			a.logger.Warn("lease release failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		_ = a.pubsub.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.db != nil {
		if err := dbadapter.Close(a.db); err != nil {
			a.logger.Warn("db close failed", zap.Error(err))
		}
	}
}
