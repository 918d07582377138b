package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/mroizo75/hmsnovaeng-sub004/internal/config"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/digest"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/eventbus"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/executor"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/notify"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/oracle"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/registry"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/run"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/runtime/supervisor"
	"github.com/mroizo75/hmsnovaeng-sub004/internal/schedule"
	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// App owns the monitor's wiring and lifecycle.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	reg      registry.Store
	runStore run.Store
	selector *schedule.Selector
	runner   *run.Runner
	trigger  *run.Trigger

	sup *supervisor.Supervisor
}

// New loads and validates the config at path and builds every component.
// Nothing is started yet.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	mgr.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("svc", "config")))

	a := &App{cfgMgr: mgr, logSvc: logSvc, log: log, bus: eventbus.New()}
	if err := a.build(cfg); err != nil {
		a.closeStores()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	regTimeout, _ := config.ParseDurationField("registry.busy_timeout", cfg.Registry.BusyTimeout)
	reg, err := registry.Open(registry.Config{
		Driver:      cfg.Registry.Driver,
		Path:        cfg.Registry.Path,
		BusyTimeout: regTimeout,
	}, a.log.With(logx.String("svc", "registry")))
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	a.reg = reg

	runTimeout, _ := config.ParseDurationField("run_store.busy_timeout", cfg.RunStore.BusyTimeout)
	runStore, err := run.OpenStore(run.StoreConfig{
		Driver:      cfg.RunStore.Driver,
		Path:        cfg.RunStore.Path,
		BusyTimeout: runTimeout,
	}, a.log.With(logx.String("svc", "runstore")))
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	a.runStore = runStore

	a.selector = schedule.NewSelector(reg, capsFrom(cfg.Scheduler.Caps),
		a.log.With(logx.String("svc", "selector")))

	oracleTimeout, _ := config.ParseDurationField("oracle.timeout", cfg.Oracle.Timeout)
	cacheTTL, _ := config.ParseDurationField("oracle.cache_ttl", cfg.Oracle.CacheTTL)
	client, err := oracle.New(oracle.Config{
		BaseURL:    cfg.Oracle.BaseURL,
		Timeout:    oracleTimeout,
		CacheTTL:   cacheTTL,
		RatePerSec: float64(cfg.Oracle.RatePerSec),
	}, a.log.With(logx.String("svc", "oracle")))
	if err != nil {
		return fmt.Errorf("oracle client: %w", err)
	}

	exec := executor.New(client, reg, a.bus, cfg.Executor.Workers,
		a.log.With(logx.String("svc", "executor")))

	var sink digest.Sink
	if cfg.Notifier != nil && cfg.NotifierEnabled() {
		timeout, _ := config.ParseDurationField("notifier.timeout", cfg.Notifier.Timeout)
		s, err := notify.NewHTTPSink(cfg.Notifier.BaseURL, timeout,
			a.log.With(logx.String("svc", "notify")))
		if err != nil {
			return fmt.Errorf("notifier sink: %w", err)
		}
		sink = s
	} else {
		a.log.Info("notifier disabled, digests will be dropped")
	}

	agg := digest.NewAggregator(reg, a.log.With(logx.String("svc", "digest")))
	disp := digest.NewDispatcher(sink, a.log.With(logx.String("svc", "digest")))

	runDeadline, _ := config.ParseDurationField("executor.run_deadline", cfg.Executor.RunDeadline)
	a.runner = run.NewRunner(a.selector, exec, agg, disp, runStore, a.bus,
		runDeadline, a.log.With(logx.String("svc", "runner")))

	if cfg.Scheduler.Enabled {
		trg, err := run.NewTrigger(a.runner, run.TriggerConfig{
			Spec:     cfg.Scheduler.Cron,
			Timezone: cfg.Scheduler.Timezone,
		}, a.log.With(logx.String("svc", "trigger")))
		if err != nil {
			return fmt.Errorf("trigger: %w", err)
		}
		a.trigger = trg
	}
	return nil
}

func capsFrom(tc config.TierCaps) schedule.Caps {
	return schedule.Caps{
		Critical: tc.Critical,
		High:     tc.High,
		Medium:   tc.Medium,
		Low:      tc.Low,
	}
}

// Start launches the background services: config watcher, reload applier,
// run-event logger, and the cron trigger when enabled.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("svc", "supervisor"))))

	a.sup.GoRestart("config-watch", func(ctx context.Context) error {
		return a.cfgMgr.Watch(ctx)
	})
	a.sup.Go("config-apply", a.applyLoop)
	a.sup.Go("run-events", a.eventLoop)

	if a.trigger != nil {
		if err := a.trigger.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("start trigger: %w", err)
		}
	} else {
		a.log.Info("scheduler disabled, no automatic runs")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("monitor started")
	return nil
}

// applyLoop reacts to committed config reloads. Only the hot-swappable
// pieces change at runtime: log output and the per-tier caps. Everything
// else keeps the boot-time values until restart.
func (a *App) applyLoop(ctx context.Context) error {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.selector.SetCaps(capsFrom(cfg.Scheduler.Caps))
			a.log.Info("config reload applied")
		}
	}
}

// eventLoop mirrors pipeline events into the log so operators can follow
// runs without a metrics stack.
func (a *App) eventLoop(ctx context.Context) error {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			a.log.Debug("event",
				logx.String("type", ev.Type),
				logx.Any("data", ev.Data))
		}
	}
}

// RunOnce executes a single pipeline pass immediately, subject to the same
// overlap and idempotency rules as scheduled runs.
func (a *App) RunOnce(ctx context.Context) (run.Record, error) {
	return a.runner.RunOnce(ctx, time.Now())
}

// Stop shuts everything down in reverse start order.
func (a *App) Stop() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.trigger != nil {
		a.trigger.Stop()
	}
	if a.sup != nil {
		a.sup.Cancel()
		if !a.sup.Wait(10 * time.Second) {
			a.log.Warn("background services did not stop in time",
				logx.Int64("active", a.sup.Active()))
		}
	}
	a.closeStores()
	a.log.Info("monitor stopped")
	_ = a.logSvc.Close()
}

func (a *App) closeStores() {
	if a.runStore != nil {
		_ = a.runStore.Close()
	}
	if a.reg != nil {
		_ = a.reg.Close()
	}
}
