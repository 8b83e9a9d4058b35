package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetnotify/internal/config"
	"fleetnotify/internal/eventbus"
	"fleetnotify/internal/ingest"
	"fleetnotify/internal/native"
	"fleetnotify/internal/notifier"
	"fleetnotify/internal/observability/admin"
	"fleetnotify/internal/push"
	rtsup "fleetnotify/internal/runtime/supervisor"
	"fleetnotify/internal/storage"
	logx "fleetnotify/pkg/logx"
	"fleetnotify/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	notif  *notifier.Service
	bridge *ingest.Bridge
	admin  *admin.Service
	pushOn bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	a := &App{
		cfgm: cfgm,
		log:  log,
		logs: logSvc,
		bus:  eventbus.New(),
	}
	if err := a.build(cfg, root); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

// build wires storage, delivery channels, the engine and the ingest bridge.
func (a *App) build(cfg *config.Config, root logx.Logger) error {
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	nc, err := mapNativeConfig(cfg)
	if err != nil {
		return err
	}
	nat, err := native.Open(nc, root.With(logx.String("comp", "native")))
	if err != nil {
		return err
	}

	var opts []notifier.Option
	if pc, enabled, err := mapPushConfig(cfg); err != nil {
		return err
	} else if enabled {
		client, err := push.New(pc, root)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		opts = append(opts, notifier.WithPusher(client))
		a.pushOn = true
	}

	ncfg, err := mapNotifierConfig(cfg, a.pushOn)
	if err != nil {
		return err
	}
	var store notifier.Store
	if a.store != nil {
		store = a.store
	}
	a.notif = notifier.New(ncfg, nat, root.With(logx.String("comp", "notifier")), a.bus, store, opts...)

	if ic, enabled, err := mapIngestConfig(cfg); err != nil {
		return err
	} else if enabled {
		a.bridge = ingest.NewBridge(ic, a.notif, root)
	}

	ac, err := mapAdminConfig(cfg)
	if err != nil {
		return err
	}
	a.admin = admin.New(ac, a.notif, root)
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapNotifierConfig(cfg, a.pushOn); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNativeConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapPushConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapIngestConfig(cfg); err != nil {
			return err
		}
		_, err := mapAdminConfig(cfg)
		return err
	})

	if err := a.notif.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.bridge != nil {
		b := a.bridge
		a.sup.GoRestart("mqtt", func(c context.Context) error {
			if err := b.Start(c); err != nil {
				return err
			}
			<-c.Done()
			b.Stop()
			return nil
		}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	a.admin.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c, a.log); err != nil {
			a.log.Warn("systemd watchdog unavailable", logx.Err(err))
		}
	})

	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Bool("push", a.pushOn),
		logx.Bool("mqtt", a.bridge != nil),
		logx.Bool("storage", a.store != nil),
		logx.Bool("admin", a.admin.Enabled()),
	)
	return nil
}

// reloadLoop applies published configs. Logging, the engine and the admin
// server are reconfigured live; the other sections need a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// keep only the latest of a burst
		for drained := false; !drained; {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				drained = true
			}
		}

		sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
		lastApplied = newCfg
		if len(sections) == 0 {
			a.log.Info("config reloaded (no changes)")
			continue
		}
		if rr := config.RestartRequired(sections); len(rr) > 0 {
			a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", rr))
		}

		a.logs.Apply(mapLogConfig(newCfg))

		ncfg, err := mapNotifierConfig(newCfg, a.pushOn)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
		}

		if ac, err := mapAdminConfig(newCfg); err != nil {
			a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
		} else {
			a.admin.Reconfigure(ctx, ac)
		}

		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	if a.bridge != nil {
		a.step(ctx, "mqtt", time.Second, func(context.Context) error { a.bridge.Stop(); return nil })
	}
	a.step(ctx, "admin", time.Second, func(c context.Context) error { a.admin.Stop(c); return nil })
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Destroy(c); return nil })
	if a.store != nil {
		a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	}
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by limit and the caller's deadline.
// A step that overruns is logged and left running.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
