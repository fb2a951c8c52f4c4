package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "stockwatch/pkg/logx"
)

var ErrUnknownJob = errors.New("unknown job")

type Job func(ctx context.Context) error

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Skipped  bool
	Error    string
}

// Entry describes a registered job.
type Entry struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type def struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	running atomic.Bool
}

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithHistorySize(n int) Option { return func(s *Scheduler) { s.historySize = n } }

// Scheduler registers jobs by name. Jobs added while stopped are kept and
// registered on the next Start.
type Scheduler struct {
	mu     sync.Mutex
	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*def

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	hmu         sync.Mutex
	history     []HistoryItem
	historySize int
}

func New(log logx.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		log:         log.With(logx.String("comp", "schedule")),
		loc:         time.Local,
		parser:      parser,
		defs:        map[string]*def{},
		historySize: 50,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add registers job under name, replacing any job with the same name.
func (s *Scheduler) Add(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if err := Validate(schedule); err != nil {
		return err
	}
	ps, _ := Parse(schedule)
	spec := ps.Spec()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &def{name: name, spec: spec, timeout: timeout, job: job}
	s.defs[name] = d
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			delete(s.defs, name)
			return err
		}
		s.log.Debug("job registered", logx.String("name", name), logx.String("spec", spec),
			logx.Time("next", s.c.Entry(d.entryID).Next))
	}
	return nil
}

// Remove unregisters name. It reports whether the job existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Scheduler) registerLocked(d *def) error {
	id, err := s.c.AddFunc(d.spec, func() { s.run(d) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Start registers every known job and starts the cron clock. Jobs run with
// a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	var errs []error
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.defs)), logx.String("tz", s.loc.String()))
	return errors.Join(errs...)
}

// Stop halts the clock, cancels running jobs and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	stopped := c.Stop()
	cancel()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

// RunNow executes name immediately, outside the cron clock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.exec(ctx, d)
}

func (s *Scheduler) run(d *def) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_ = s.exec(ctx, d)
}

func (s *Scheduler) exec(ctx context.Context, d *def) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("job still running, skipping", logx.String("name", d.name))
		s.record(HistoryItem{Name: d.name, Started: time.Now(), Skipped: true})
		return nil
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer d.running.Store(false)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panic", logx.String("name", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		item := HistoryItem{Name: d.name, Started: start, Duration: time.Since(start)}
		if err != nil {
			item.Error = err.Error()
			s.log.Warn("job failed", logx.String("name", d.name), logx.Duration("took", item.Duration), logx.Err(err))
		} else {
			s.log.Debug("job ok", logx.String("name", d.name), logx.Duration("took", item.Duration))
		}
		s.record(item)
	}()
	return d.job(ctx)
}

func (s *Scheduler) record(item HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if s.historySize > 0 && len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// History returns past runs, oldest first.
func (s *Scheduler) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// Entries lists registered jobs sorted by name. Next and Prev are zero
// while the scheduler is stopped.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.defs))
	for _, d := range s.defs {
		e := Entry{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			ce := s.c.Entry(d.entryID)
			e.Next, e.Prev = ce.Next, ce.Prev
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NextRuns previews the next n activations of schedule after from, in the
// scheduler's location.
func (s *Scheduler) NextRuns(schedule string, from time.Time, n int) ([]time.Time, error) {
	ps, err := Parse(schedule)
	if err != nil {
		return nil, err
	}
	sched, err := s.parser.Parse(ps.Spec())
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from.In(s.loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
