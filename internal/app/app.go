// Package app wires configuration, the change source, the router and the
// delivery pipeline into one supervised process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"pushwatch/internal/config"
	"pushwatch/internal/delivery"
	"pushwatch/internal/metrics"
	"pushwatch/internal/router"
	"pushwatch/internal/runtime/supervisor"
	"pushwatch/internal/source"
	"pushwatch/internal/storage"
	"pushwatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store     storage.Store
	retention time.Duration
	cron      *cron.Cron

	metrics     metrics.Recorder
	metricsAddr string
	metricsPath string
	metricsSrv  *http.Server

	hub      *source.Hub
	router   *router.Router
	delivery *delivery.Service
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath, logx.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log.With(logx.String("comp", "app")), logs: logSvc}
	if err := a.build(cfg, log); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	sc, retention, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return err
		}
		a.store = st
		a.retention = retention
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	mc, addr, path := mapMetricsConfig(cfg)
	a.metrics = metrics.New(mc)
	a.metricsAddr, a.metricsPath = addr, path

	dir, err := delivery.NewDirectory(cfg.Delivery.Targets)
	if err != nil {
		return fmt.Errorf("delivery.targets: %w", err)
	}
	sender, err := newSender(cfg, log.With(logx.String("comp", "sender")))
	if err != nil {
		return err
	}
	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return err
	}
	a.delivery = delivery.New(dc, sender, dir, log.With(logx.String("comp", "delivery")), a.store, a.metrics)

	rc, err := mapRouterConfig(cfg)
	if err != nil {
		return err
	}
	a.hub = source.NewHub(log.With(logx.String("comp", "source")), cfg.Source.QueueSize)
	a.router = router.New(rc, a.hub, a.delivery,
		router.WithLogger(log.With(logx.String("comp", "router"))),
		router.WithMetrics(a.metrics),
	)
	if err := a.router.Configure(router.Routes(cfg.Routes), dir); err != nil {
		return err
	}
	a.log.Info("routes configured",
		logx.Int("entities", len(a.router.Entities())),
		logx.Int("targets", dir.Len()),
		logx.String("sender", sender.Name()),
	)
	return nil
}

// Check validates cfgPath the way New would, without opening storage or
// contacting the delivery transport.
func Check(cfgPath string) error {
	cfgm := config.NewConfigManager(cfgPath, logx.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}
	dir, err := delivery.NewDirectory(cfg.Delivery.Targets)
	if err != nil {
		return err
	}
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	if _, _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	rc, err := mapRouterConfig(cfg)
	if err != nil {
		return err
	}
	r := router.New(rc, source.NewHub(logx.Nop(), 0), nopDeliverer{})
	return r.Configure(router.Routes(cfg.Routes), dir)
}

type nopDeliverer struct{}

func (nopDeliverer) Deliver(context.Context, delivery.Notification) error { return nil }

// Hub exposes the in-process change source so callers can publish
// observations.
func (a *App) Hub() *source.Hub { return a.hub }

func (a *App) Router() *router.Router { return a.router }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	if a.delivery.Enabled() {
		a.delivery.Start(a.sup.Context())
	} else {
		a.log.Warn("delivery disabled; batches will be dropped")
	}

	a.sup.Go("source.hub", a.hub.Run)

	if replay := strings.TrimSpace(cfg.Source.Replay); replay != "" {
		a.sup.Go("source.replay", func(c context.Context) error {
			n, err := source.ReplayFile(c, replay, a.hub)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("replay %s: %w", replay, err)
			}
			a.log.Info("replay finished", logx.String("path", replay), logx.Int("observations", n))
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		a.startMetricsServer()
	}
	if a.store != nil && a.retention > 0 {
		if err := a.startRetention(pruneSchedule(cfg)); err != nil {
			return err
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, cfg)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(250*time.Millisecond, 5*time.Second))

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.Int("entities", len(a.router.Entities())))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config, applied *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeConfigChange(applied, next)
			applied = next
			if len(changed) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			if err := a.logs.Apply(mapLoggingConfig(next)); err != nil {
				a.log.Warn("logging reconfigure incomplete", logx.Err(err))
			}
			a.applyDelivery(ctx, next)

			fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if restart := config.NeedsRestart(changed); len(restart) > 0 {
				a.log.Warn("config sections changed that need a restart", logx.Strings("sections", restart))
			}
		}
	}
}

func (a *App) applyDelivery(ctx context.Context, cfg *config.Config) {
	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
		return
	}
	wasEnabled := a.delivery.Enabled()
	a.delivery.Apply(dc)
	switch {
	case wasEnabled && !dc.Enabled:
		a.log.Info("delivery disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.delivery.Stop(stopCtx)
		cancel()
	case !wasEnabled && dc.Enabled:
		a.log.Info("delivery enabled via config")
		a.delivery.Start(ctx)
	}
}

// Stop flushes pending batches, drains delivery and closes resources. Each
// step runs under its own deadline.
func (a *App) Stop(ctx context.Context) error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	a.log.Info("stopping")

	step := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("source", time.Second, func(context.Context) error { a.hub.Close(); return nil })
	step("router.flush", 2*time.Second, func(c context.Context) error {
		n := a.router.Flush(c)
		a.log.Info("pending batches flushed", logx.Int("records", n))
		return nil
	})
	step("delivery", 5*time.Second, func(c context.Context) error { a.delivery.Stop(c); return nil })
	step("retention", time.Second, func(c context.Context) error {
		if a.cron == nil {
			return nil
		}
		select {
		case <-a.cron.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("metrics", time.Second, func(c context.Context) error {
		if a.metricsSrv == nil {
			return nil
		}
		return a.metricsSrv.Shutdown(c)
	})
	if a.sup != nil {
		a.sup.Cancel()
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
