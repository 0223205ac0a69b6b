package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Defaults.
const (
	DefaultRenewInterval   = 50 * time.Second
	DefaultRenewLifetime   = 100
	DefaultTickInterval    = 1 * time.Second
	DefaultReportThreshold = 10
)

// ErrSessionFailed is returned by Run when the session fails.
var ErrSessionFailed = errors.New("session failed")

// Session is the part of the registration session the tasks use.
type Session interface {
	IsRegistered() bool
	InitiateRenewal(ctx context.Context, lifetime uint32) error
	AwaitUnregistered(ctx context.Context) bool
}

// Reporter pushes the next reported value to the resource store.
type Reporter interface {
	Report(ctx context.Context) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context) error

// Report calls f(ctx).
func (f ReporterFunc) Report(ctx context.Context) error { return f(ctx) }

// Config configures a Scheduler. Zero durations and counts take the
// defaults.
type Config struct {
	Session  Session
	Reporter Reporter

	RenewInterval   time.Duration
	RenewLifetime   uint32
	TickInterval    time.Duration
	ReportThreshold int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.RenewInterval <= 0 {
		c.RenewInterval = DefaultRenewInterval
	}
	if c.RenewLifetime == 0 {
		c.RenewLifetime = DefaultRenewLifetime
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ReportThreshold <= 0 {
		c.ReportThreshold = DefaultReportThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler runs the renewal, reporting and shutdown-wait tasks.
type Scheduler struct {
	cfg Config

	mu      sync.Mutex
	ticks    int
	reports  int
	failures int
	cancel  context.CancelFunc
	stopped bool

	done       chan struct{}
	failed     chan struct{}
	doneOnce   sync.Once
	failedOnce sync.Once
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:    cfg,
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
}

// Run runs all tasks until the session is unregistered (nil), the session
// fails (ErrSessionFailed), or ctx is cancelled or Stop is called (nil).
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.renewLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.reportLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return s.shutdownWait(gctx, cancel)
	})
	return g.Wait()
}

// Stop cancels all tasks unconditionally.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed when the session has been unregistered.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Failed is closed when the session has failed.
func (s *Scheduler) Failed() <-chan struct{} {
	return s.failed
}

// Ticks returns the ticks counted since the last report.
func (s *Scheduler) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// ReportFailures returns the number of reports the Reporter rejected.
func (s *Scheduler) ReportFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Reports returns the number of successful reports.
func (s *Scheduler) Reports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports
}

func (s *Scheduler) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.renew(ctx)
		}
	}
}

func (s *Scheduler) renew(ctx context.Context) {
	if !s.cfg.Session.IsRegistered() {
		return
	}
	if err := s.cfg.Session.InitiateRenewal(ctx, s.cfg.RenewLifetime); err != nil {
		s.cfg.Logger.Warn("renewal failed", "error", err)
	}
}

func (s *Scheduler) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick counts one tick and reports once the threshold is reached while
// registered.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	due := s.ticks >= s.cfg.ReportThreshold
	s.mu.Unlock()

	if !due || !s.cfg.Session.IsRegistered() || s.cfg.Reporter == nil {
		return
	}

	err := s.cfg.Reporter.Report(ctx)
	if err != nil {
		s.cfg.Logger.Warn("report failed", "error", err)
	}

	s.mu.Lock()
	s.ticks = 0
	if err != nil {
		s.failures++
	} else {
		s.reports++
	}
	s.mu.Unlock()
}

func (s *Scheduler) shutdownWait(ctx context.Context, cancel context.CancelFunc) error {
	ok := s.cfg.Session.AwaitUnregistered(ctx)
	if ctx.Err() != nil && !ok {
		return nil
	}

	// Cancellation only after the wait returned.
	defer cancel()
	if ok {
		s.cfg.Logger.Info("unregistered, stopping tasks")
		s.doneOnce.Do(func() { close(s.done) })
		return nil
	}
	s.cfg.Logger.Error("session failed, stopping tasks")
	s.failedOnce.Do(func() { close(s.failed) })
	return ErrSessionFailed
}
