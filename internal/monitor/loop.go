package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/inventory"
	rtsup "stockwatch/internal/runtime/supervisor"
	logx "stockwatch/pkg/logx"
)

// Loop is the stock watcher. It is safe for concurrent use.
type Loop struct {
	log   logx.Logger
	store Store
	chans ChannelSource
	bus   eventbus.Bus
	clock Clock

	mu       sync.Mutex
	cfg      Config
	state    State
	sup      *rtsup.Supervisor
	gate     *gate
	wake     chan struct{}
	limiters map[string]*rate.Limiter
	// halted is set by Stop and cleared by Start. A loop that was never
	// started still serves foreground Tick and AlertNow.
	halted bool

	// tickMu serializes ticks and AlertNow.
	tickMu sync.Mutex

	amu    sync.Mutex
	alerts map[string]AlertState

	ticks     atomic.Uint64
	tickFails atomic.Uint64
}

type Option func(*Loop)

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }
func WithBus(bus eventbus.Bus) Option   { return func(l *Loop) { l.bus = bus } }
func WithClock(c Clock) Option          { return func(l *Loop) { l.clock = c } }

func New(store Store, chans ChannelSource, cfg Config, opts ...Option) *Loop {
	l := &Loop{
		log:      logx.Nop(),
		store:    store,
		chans:    chans,
		bus:      eventbus.Nop(),
		clock:    systemClock{},
		cfg:      cfg.withDefaults(),
		limiters: map[string]*rate.Limiter{},
		alerts:   map[string]AlertState{},
	}
	for _, o := range opts {
		o(l)
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	if l.bus == nil {
		l.bus = eventbus.Nop()
	}
	if l.clock == nil {
		l.clock = systemClock{}
	}
	l.log = l.log.With(logx.String("comp", "monitor"))
	return l
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Apply swaps tuning knobs. Takes effect from the next tick.
func (l *Loop) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	l.mu.Lock()
	prev := l.cfg
	l.cfg = cfg
	if prev.RatePerSec != cfg.RatePerSec || prev.Burst != cfg.Burst {
		l.limiters = map[string]*rate.Limiter{}
	}
	l.mu.Unlock()
	l.wakeUp()
}

// Ticks returns how many ticks ran and how many were aborted.
func (l *Loop) Ticks() (total, failed uint64) {
	return l.ticks.Load(), l.tickFails.Load()
}

// AlertStates returns a copy of the per-product alert memory.
func (l *Loop) AlertStates() map[string]AlertState {
	l.amu.Lock()
	defer l.amu.Unlock()
	out := make(map[string]AlertState, len(l.alerts))
	for k, v := range l.alerts {
		out[k] = v
	}
	return out
}

// Start moves Stopped to Running and launches the poll goroutine. It is a
// no-op when already started.
func (l *Loop) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	if l.state != StateStopped {
		l.mu.Unlock()
		return nil
	}
	cfg := l.cfg
	sup := rtsup.New(ctx,
		rtsup.WithLogger(l.log),
		// a failed tick must not take down the app
		rtsup.WithCancelOnError(false),
	)
	g := &gate{}
	wake := make(chan struct{}, 1)
	l.sup, l.gate, l.wake = sup, g, wake
	l.state = StateRunning
	l.halted = false
	l.mu.Unlock()

	l.reset(cfg)

	sup.GoRestart("monitor.loop", func(ctx context.Context) error {
		return l.run(ctx, g, wake)
	}, rtsup.WithRestartBackoff(time.Second, time.Minute))

	l.log.Info("monitor started",
		logx.Int("threshold", cfg.Threshold),
		logx.Duration("poll", cfg.PollInterval),
		logx.Duration("cooldown", cfg.Cooldown),
	)
	return nil
}

// reset clears the alert memory and, unless AlertOnStartup is set, seeds it
// with the current condition of every product.
func (l *Loop) reset(cfg Config) {
	seed := map[string]AlertState{}
	if !cfg.AlertOnStartup {
		products, err := l.store.Products()
		if err != nil {
			l.log.Warn("seed alert state failed; every condition alerts on first tick", logx.Err(err))
		}
		now := l.clock.Now()
		for _, p := range products {
			if c := inventory.Classify(p.Quantity, cfg.Threshold); c != inventory.ConditionNone {
				seed[p.ID] = AlertState{Condition: c, RaisedAt: now}
			}
		}
	}
	l.amu.Lock()
	l.alerts = seed
	l.amu.Unlock()
}

func (l *Loop) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateStopped:
		return ErrNotRunning
	case StateRunning:
		l.state = StatePaused
		l.log.Info("monitor paused")
	}
	return nil
}

func (l *Loop) Resume() error {
	l.mu.Lock()
	switch l.state {
	case StateStopped:
		l.mu.Unlock()
		return ErrNotRunning
	case StatePaused:
		l.state = StateRunning
		l.mu.Unlock()
		l.log.Info("monitor resumed")
		l.wakeUp()
		return nil
	}
	l.mu.Unlock()
	return nil
}

func (l *Loop) wakeUp() {
	l.mu.Lock()
	wake := l.wake
	l.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for it to exit, up to StopGrace or the ctx
// deadline, whichever is sooner. It is idempotent. Once it returns no tick
// starts and no channel call is issued.
func (l *Loop) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return nil
	}
	sup, g, grace := l.sup, l.gate, l.cfg.StopGrace
	l.sup, l.gate, l.wake = nil, nil, nil
	l.state = StateStopped
	l.halted = true
	l.mu.Unlock()

	sup.Cancel()
	g.close()

	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			l.log.Warn("monitor stop timed out; abandoning in-flight tick", logx.Duration("grace", grace))
			return err
		}
		l.log.Warn("monitor exited with error", logx.Err(err))
	}
	l.log.Info("monitor stopped")
	return nil
}

func (l *Loop) run(ctx context.Context, g *gate, wake <-chan struct{}) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		l.mu.Lock()
		state, cfg := l.state, l.cfg
		l.mu.Unlock()

		interval := cfg.PausedPollInterval
		if state == StateRunning {
			interval = cfg.PollInterval
			_ = l.tick(ctx, g)
		}
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(interval)
	}
}

// Tick runs one poll-classify-dispatch pass. It works while running or
// paused, and on a loop that was never started, where the pass is bounded by
// ctx only. After Stop it returns ErrStopped until the next Start.
func (l *Loop) Tick(ctx context.Context) error {
	ctx, g, cancel, err := l.scope(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return l.tick(ctx, g)
}

// scope ties ctx to the running loop so Stop also cancels foreground passes.
func (l *Loop) scope(ctx context.Context) (context.Context, *gate, context.CancelFunc, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	sup, g, halted := l.sup, l.gate, l.halted
	l.mu.Unlock()
	if halted {
		return nil, nil, nil, ErrStopped
	}
	if sup == nil {
		c, cancel := context.WithCancel(ctx)
		return c, &gate{}, cancel, nil
	}
	c, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(sup.Context(), cancel)
	return c, g, func() {
		stop()
		cancel()
	}, nil
}

func (l *Loop) tick(ctx context.Context, g *gate) error {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	l.ticks.Add(1)

	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	products, err := l.store.Products()
	if err != nil {
		l.tickFailed(err, "read products")
		return err
	}
	now := l.clock.Now()
	chans := l.chans.Channels()

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		seen[p.ID] = struct{}{}
		cond := inventory.Classify(p.Quantity, cfg.Threshold)
		due, reminder := l.due(p.ID, cond, now, cfg.Cooldown)
		if !due {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		a := newAlert(p, cond, cfg.Threshold, now, reminder)
		if err := l.dispatch(ctx, g, cfg, chans, a); err != nil {
			var se *storeError
			if errors.As(err, &se) {
				l.tickFailed(se.err, "record outcome")
				return se.err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	l.forget(seen)
	return nil
}

func (l *Loop) tickFailed(err error, stage string) {
	l.tickFails.Add(1)
	l.log.Error("tick aborted", logx.String("stage", stage), logx.Err(err))
	l.bus.Publish(eventbus.Event{Type: EventTickError, Data: err.Error()})
	if errors.Is(err, inventory.ErrClosed) {
		return
	}
	// Best effort; the store may be the thing that is failing.
	_ = l.store.Append(inventory.AgentMonitor, inventory.ActionError, "Monitor tick aborted ("+stage+"): "+err.Error())
}

// due decides whether cond for product id needs an alert now, and updates the
// memory for transitions that do not alert.
func (l *Loop) due(id string, cond inventory.Condition, now time.Time, cooldown time.Duration) (due, reminder bool) {
	l.amu.Lock()
	defer l.amu.Unlock()
	prev, ok := l.alerts[id]
	switch {
	case cond == inventory.ConditionNone:
		delete(l.alerts, id)
		return false, false
	case !ok || cond > prev.Condition:
		return true, false
	case cond < prev.Condition:
		// out -> low: remember the milder condition without announcing it
		l.alerts[id] = AlertState{Condition: cond, RaisedAt: prev.RaisedAt}
		return false, false
	default:
		if now.Sub(prev.RaisedAt) >= cooldown {
			return true, true
		}
		return false, false
	}
}

func (l *Loop) raised(id string, cond inventory.Condition, at time.Time) {
	l.amu.Lock()
	l.alerts[id] = AlertState{Condition: cond, RaisedAt: at}
	l.amu.Unlock()
}

// forget drops memory for products that no longer exist.
func (l *Loop) forget(seen map[string]struct{}) {
	l.amu.Lock()
	for id := range l.alerts {
		if _, ok := seen[id]; !ok {
			delete(l.alerts, id)
		}
	}
	l.amu.Unlock()
}

// AlertNow sends an alert for every low or out-of-stock product regardless
// of the alert memory, and returns how many alerts were recorded. Like Tick
// it returns ErrStopped after Stop.
func (l *Loop) AlertNow(ctx context.Context) (int, error) {
	ctx, g, cancel, err := l.scope(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	l.mu.Lock()
	cfg := l.cfg
	l.mu.Unlock()

	products, err := l.store.Products()
	if err != nil {
		return 0, err
	}
	now := l.clock.Now()
	chans := l.chans.Channels()

	sent := 0
	var errs []error
	for _, p := range products {
		cond := inventory.Classify(p.Quantity, cfg.Threshold)
		if cond == inventory.ConditionNone {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		err := l.dispatch(ctx, g, cfg, chans, newAlert(p, cond, cfg.Threshold, now, false))
		if err == nil {
			sent++
			continue
		}
		var se *storeError
		if errors.As(err, &se) {
			return sent, se.err
		}
		errs = append(errs, err)
	}
	return sent, errors.Join(errs...)
}

func (l *Loop) limiter(name string, cfg Config) *rate.Limiter {
	if cfg.RatePerSec <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
		l.limiters[name] = lim
	}
	return lim
}
