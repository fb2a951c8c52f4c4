package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/inventory"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notifier"
	"stockwatch/internal/observability/pprof"
	"stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/schedule"
	logx "stockwatch/pkg/logx"
)

var ErrNotOpen = errors.New("controller not open")

const (
	reportJob = "report"

	EventConfigApplied = "app.config.applied"
	EventReportSent    = "app.report.sent"
)

// Controller is the composition root: it owns the record store, the
// notification channels, the monitor loop and the report schedule.
type Controller struct {
	cfgm    *config.ConfigManager
	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	factory ChannelFactory
	now     func() time.Time
	prof    *pprof.Server

	// life serializes Open, Start, Stop and Restart.
	life sync.Mutex

	mu     sync.RWMutex
	cfg    *config.Config
	store  *inventory.Store
	chans  *notifier.Provider
	loop   *monitor.Loop
	sched  *schedule.Scheduler
	sup    *supervisor.Supervisor
	parent context.Context
}

type Option func(*Controller)

func WithLogger(log logx.Logger) Option { return func(c *Controller) { c.log = log } }

// WithLogService lets Reconfigure apply logging changes and Shutdown close
// the log sinks.
func WithLogService(s *logx.Service) Option { return func(c *Controller) { c.logs = s } }

func WithChannelFactory(f ChannelFactory) Option { return func(c *Controller) { c.factory = f } }

func WithConfigManager(m *config.ConfigManager) Option { return func(c *Controller) { c.cfgm = m } }

func WithBus(bus eventbus.Bus) Option { return func(c *Controller) { c.bus = bus } }

// WithClock overrides time for the store, the monitor and reports.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// New returns a controller for cfg. Nothing is loaded until Open or Start.
func New(cfg *config.Config, opts ...Option) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Controller{
		cfg:     cfg,
		bus:     eventbus.New(),
		factory: notifier.Build,
		chans:   notifier.NewProvider(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.bus == nil {
		c.bus = eventbus.Nop()
	}
	if c.factory == nil {
		c.factory = notifier.Build
	}
	c.log = c.log.With(logx.String("comp", "app"))
	c.prof = pprof.New(c.log)
	return c
}

// Load reads the config at path (JSON or YAML, plus environment overrides)
// and returns a controller that follows later edits of that file once
// started.
func Load(path string, opts ...Option) (*Controller, error) {
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, append([]Option{WithConfigManager(cfgm)}, opts...)...), nil
}

// Config returns the settings currently applied.
func (c *Controller) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Controller) Events() eventbus.Bus { return c.bus }

// DebugAddr is the bound pprof address, or "" when the listener is off.
func (c *Controller) DebugAddr() string { return c.prof.Addr() }

// Open loads the store from disk and builds the channels without starting
// the monitor. A missing or corrupt snapshot leaves an empty store with an
// error activity; it is not fatal. Open is a no-op when already open.
func (c *Controller) Open() error {
	c.life.Lock()
	defer c.life.Unlock()
	return c.open()
}

func (c *Controller) open() error {
	c.mu.RLock()
	opened := c.store != nil
	cfg := c.cfg
	c.mu.RUnlock()
	if opened {
		return nil
	}

	chs, err := c.factory(mapNotifierConfig(cfg))
	if err != nil {
		return fmt.Errorf("build channels: %w", err)
	}

	storeOpts := []inventory.Option{inventory.WithLogger(c.log)}
	monOpts := []monitor.Option{monitor.WithLogger(c.log), monitor.WithBus(c.bus)}
	if c.now != nil {
		storeOpts = append(storeOpts, inventory.WithClock(c.now))
		monOpts = append(monOpts, monitor.WithClock(clockFunc(c.now)))
	}
	path := strings.TrimSpace(cfg.Store.Path)
	if path == "" {
		path = config.DefaultStorePath
	}
	st := inventory.New(path, storeOpts...)
	if err := st.Load(); err != nil {
		c.log.Warn("store load failed; continuing with recovered state", logx.String("path", path), logx.Err(err))
	}
	products, activities := st.Len()

	c.chans.Swap(chs)
	loop := monitor.New(st, c.chans, mapMonitorConfig(cfg), monOpts...)

	c.mu.Lock()
	c.store = st
	c.loop = loop
	c.mu.Unlock()

	c.log.Info("store opened",
		logx.String("path", path),
		logx.Int("products", products),
		logx.Int("activities", activities),
		logx.String("channels", strings.Join(notifier.Names(chs), ",")),
	)
	return nil
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Start opens the store, starts the monitor Running, and starts the report
// schedule and the config watcher. ctx bounds the whole run; Restart reuses
// it.
func (c *Controller) Start(ctx context.Context) error {
	c.life.Lock()
	defer c.life.Unlock()
	return c.start(ctx)
}

func (c *Controller) start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.RLock()
	running := c.sup != nil
	c.mu.RUnlock()
	if running {
		return nil
	}
	if err := c.open(); err != nil {
		return err
	}

	c.mu.Lock()
	cfg, loop := c.cfg, c.loop
	sup := supervisor.New(ctx, supervisor.WithLogger(c.log), supervisor.WithCancelOnError(false))
	sched := schedule.New(c.log, schedule.WithLocation(cfg.Reports.Location()))
	c.sup, c.sched, c.parent = sup, sched, ctx
	c.mu.Unlock()

	if err := loop.Start(sup.Context()); err != nil {
		return err
	}
	if err := c.registerReport(sched, cfg); err != nil {
		c.log.Warn("report schedule rejected", logx.String("schedule", cfg.Reports.Schedule), logx.Err(err))
	}
	if err := sched.Start(sup.Context()); err != nil {
		c.log.Warn("report schedule start failed", logx.Err(err))
	}
	if err := c.prof.Apply(ctx, mapPprofConfig(cfg)); err != nil {
		c.log.Warn("debug listener not started", logx.Err(err))
	}

	events, unsub := c.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				c.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	if c.cfgm != nil && strings.TrimSpace(c.cfgm.Path()) != "" {
		c.cfgm.SetLogger(c.log.With(logx.String("comp", "config")))
		c.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			_, err := c.factory(mapNotifierConfig(cfg))
			return err
		})
		sub := c.cfgm.Subscribe(8)
		sup.Go0("config.reload", func(ctx context.Context) {
			defer c.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return
				case next, ok := <-sub:
					if !ok {
						return
					}
					// keep only the newest
					for drained := false; !drained; {
						select {
						case newer := <-sub:
							if newer != nil {
								next = newer
							}
						default:
							drained = true
						}
					}
					if err := c.Reconfigure(next); err != nil {
						c.log.Warn("config reload not applied", logx.Err(err))
					}
				}
			}
		})
		sup.Go("config.watch", c.cfgm.Watch)
	}

	c.log.Info("controller started", logx.String("state", loop.State().String()))
	return nil
}

func (c *Controller) registerReport(sched *schedule.Scheduler, cfg *config.Config) error {
	spec := strings.TrimSpace(cfg.Reports.Schedule)
	if spec == "" {
		sched.Remove(reportJob)
		return nil
	}
	return sched.Add(reportJob, spec, cfg.Reports.RunTimeout(), func(ctx context.Context) error {
		err := c.SendReportNow(ctx)
		if errors.Is(err, notifier.ErrNoChannels) {
			c.log.Debug("scheduled report skipped: no channels")
			return nil
		}
		return err
	})
}

// Pause stops classification without dropping alert memory.
func (c *Controller) Pause() error {
	loop, err := c.loopRef()
	if err != nil {
		return err
	}
	return loop.Pause()
}

func (c *Controller) Resume() error {
	loop, err := c.loopRef()
	if err != nil {
		return err
	}
	return loop.Resume()
}

// State reports the monitor state; Stopped when not started.
func (c *Controller) State() monitor.State {
	c.mu.RLock()
	loop := c.loop
	c.mu.RUnlock()
	if loop == nil {
		return monitor.StateStopped
	}
	return loop.State()
}

// Shutdown stops everything, persists the store and releases it.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Stop(ctx, StopAppStop)
}

// Stop is Shutdown with a reason for the log.
func (c *Controller) Stop(ctx context.Context, reason StopReason) error {
	c.life.Lock()
	defer c.life.Unlock()
	err := c.stop(ctx, reason)
	c.prof.Stop(ctx)
	if c.logs != nil {
		_ = c.logs.Close()
	}
	return err
}

// Restart is Shutdown followed by a fresh Start on the original context.
// Alert memory starts over; products and history are reloaded from disk.
func (c *Controller) Restart(ctx context.Context) error {
	c.life.Lock()
	defer c.life.Unlock()
	c.mu.RLock()
	parent := c.parent
	c.mu.RUnlock()
	if parent == nil || parent.Err() != nil {
		parent = context.Background()
	}
	if err := c.stop(ctx, StopRestart); err != nil {
		c.log.Warn("restart: shutdown reported errors", logx.Err(err))
	}
	return c.start(parent)
}

func (c *Controller) stop(ctx context.Context, reason StopReason) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.RLock()
	st, loop, sched, sup := c.store, c.loop, c.sched, c.sup
	c.mu.RUnlock()
	if st == nil {
		return nil
	}
	c.log.Info("stopping", logx.String("reason", string(reason)))
	if sup != nil {
		sup.Cancel()
	}

	var errs []error
	c.step(ctx, "monitor", 5*time.Second, func(ctx context.Context) error { return loop.Stop(ctx) })
	if sched != nil {
		c.step(ctx, "schedule", 2*time.Second, sched.Stop)
	}
	if sup != nil {
		c.step(ctx, "supervisor", 2*time.Second, sup.Wait)
	}
	if err := st.Persist(); err != nil {
		c.log.Error("final persist failed", logx.String("path", st.Path()), logx.Err(err))
		errs = append(errs, err)
	}
	st.Close()

	c.mu.Lock()
	c.store, c.loop, c.sched, c.sup = nil, nil, nil, nil
	c.mu.Unlock()
	c.log.Info("stopped", logx.String("reason", string(reason)))
	return errors.Join(errs...)
}

// step runs one shutdown stage with its own upper bound so one component
// cannot stall the whole stop. It never extends the caller's deadline.
func (c *Controller) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		max = time.Millisecond
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
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
			c.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		c.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		c.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

func (c *Controller) storeRef() (*inventory.Store, *config.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.store == nil {
		return nil, nil, ErrNotOpen
	}
	return c.store, c.cfg, nil
}

func (c *Controller) loopRef() (*monitor.Loop, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loop == nil {
		return nil, ErrNotOpen
	}
	return c.loop, nil
}

func (c *Controller) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
