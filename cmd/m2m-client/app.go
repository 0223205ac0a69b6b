package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mash-protocol/m2m-client/cmd/m2m-client/interactive"
	"github.com/mash-protocol/m2m-client/pkg/discovery"
	"github.com/mash-protocol/m2m-client/pkg/endpoint"
	"github.com/mash-protocol/m2m-client/pkg/interaction"
	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/metrics"
	"github.com/mash-protocol/m2m-client/pkg/persistence"
	"github.com/mash-protocol/m2m-client/pkg/scheduler"
	"github.com/mash-protocol/m2m-client/pkg/session"
	"github.com/mash-protocol/m2m-client/pkg/transport"
)

var errNoSession = errors.New("no active session")

// app owns the long-lived parts of the process and restarts the session
// when retries are configured.
type app struct {
	cfg      Config
	logger   *slog.Logger
	protoLog log.Logger
	resolver interaction.Resolver
	state    *persistence.EndpointStateStore

	stop chan struct{}

	mu      sync.RWMutex
	attempt int
	since   time.Time
	ep      *endpoint.Client
	ic      *interaction.Client
	sched   *scheduler.Scheduler
}

func run(ctx context.Context, cfg Config) error {
	level, _ := parseLogLevel(cfg.LogLevel)

	a := &app{
		cfg:  cfg,
		stop: make(chan struct{}, 1),
	}

	var out io.Writer = os.Stderr
	var console *interactive.Console
	if cfg.Interactive {
		c, err := interactive.New(a)
		if err != nil {
			return err
		}
		console = c
		defer console.Close()
		out = console.Stdout()
	}
	a.logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	loggers := []log.Logger{metrics.NewCollector(reg)}
	if level <= slog.LevelDebug {
		loggers = append(loggers, log.NewSlogAdapter(a.logger))
	}
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		loggers = append(loggers, fl)
		a.logger.Info("protocol logging enabled", "path", fl.Path())
	}
	a.protoLog = log.NewMultiLogger(loggers...)

	if cfg.StateFile != "" {
		a.state = persistence.NewEndpointStateStore(cfg.StateFile)
	}
	a.resolver = discovery.NewResolver(discovery.NewBrowser(discovery.BrowserConfig{}), 0)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.StatusAddr != "" {
		srv := &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           newStatusRouter(a, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
		a.logger.Info("status server listening", "addr", cfg.StatusAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				a.logger.Info("received signal", "signal", sig.String())
				a.requestStop()
			case <-ctx.Done():
				return
			}
		}
	}()

	if console != nil {
		go console.Run(ctx, a.requestStop)
	}

	return a.loop(ctx)
}

// loop runs sessions until one ends without a retry.
func (a *app) loop(ctx context.Context) error {
	backoff := session.NewBackoff(session.BackoffConfig{MaxAttempts: a.cfg.RetryAttempts})
	for {
		err := a.runSession(ctx)
		if err == nil || errors.Is(err, errInterrupted) || a.cfg.RetryAttempts == 0 || ctx.Err() != nil {
			return err
		}

		a.logger.Warn("session ended, retrying", "error", err, "retry", backoff.Attempts()+1, "max", a.cfg.RetryAttempts)
		wctx, cancel := context.WithCancel(ctx)
		waited := make(chan bool, 1)
		go func() { waited <- backoff.Wait(wctx) }()
		select {
		case ok := <-waited:
			cancel()
			if !ok {
				return err
			}
		case <-a.stop:
			cancel()
			return errInterrupted
		}
	}
}

// runSession registers a fresh endpoint and runs its tasks until the
// session ends. It returns nil after a graceful deregistration.
func (a *app) runSession(ctx context.Context) error {
	sessionID := uuid.NewString()
	localPort := a.cfg.LocalPort
	if localPort == 0 {
		localPort = transport.RandomPort()
	}

	ic := interaction.NewClient(interaction.Config{
		Resolver: a.resolver,
		Dial: transport.DialConfig{
			LocalPort: localPort,
			Logger:    a.protoLog,
		},
		RequestTimeout: a.cfg.RequestTimeout,
		SessionID:      sessionID,
		ProtocolLogger: a.protoLog,
		Logger:         a.logger,
	})
	defer ic.Close()

	ep, err := endpoint.New(endpoint.Config{
		Identity:       a.cfg.identity(),
		Security:       a.cfg.security(),
		Registrar:      ic,
		Timeout:        a.cfg.OperationTimeout,
		State:          a.state,
		SessionID:      sessionID,
		ProtocolLogger: a.protoLog,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}
	ic.SetObserver(ep)
	ep.OnLocalChange(func(path string, value []byte) {
		if err := ic.Notify(ctx, path, value); err != nil {
			a.logger.Warn("notify failed", "path", path, "error", err)
		}
	})

	sched := scheduler.New(scheduler.Config{
		Session:         ep.Session(),
		Reporter:        ep.Reporter(),
		RenewInterval:   a.cfg.RenewInterval,
		RenewLifetime:   a.cfg.RenewLifetime,
		TickInterval:    a.cfg.TickInterval,
		ReportThreshold: a.cfg.ReportThreshold,
		Logger:          a.logger,
	})
	a.setCurrent(ep, ic, sched)
	a.logger.Info("registering", "endpoint", a.cfg.Endpoint, "server", a.cfg.Server,
		"security", a.cfg.security().Mode, "local_port", localPort)

	if err := ep.Register(ctx); err != nil {
		return fmt.Errorf("%w: register: %w", scheduler.ErrSessionFailed, err)
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	unregistering := false
	for {
		select {
		case err := <-done:
			if err == nil && !ep.Session().IsUnregistered() {
				return ctx.Err()
			}
			if err == nil {
				a.logger.Info("unregistered")
			}
			return err

		case <-a.stop:
			sess := ep.Session()
			if unregistering || !sess.IsRegistered() {
				sched.Stop()
				<-done
				return errInterrupted
			}
			ok, err := sess.InitiateUnregistration(ctx)
			if err != nil {
				// The session failed; the scheduler reports it.
				a.logger.Error("deregistration failed", "error", err)
				continue
			}
			if !ok {
				sched.Stop()
				<-done
				return errInterrupted
			}
			unregistering = true
			a.logger.Info("deregistering")
		}
	}
}

func (a *app) requestStop() {
	select {
	case a.stop <- struct{}{}:
	default:
	}
}

func (a *app) setCurrent(ep *endpoint.Client, ic *interaction.Client, sched *scheduler.Scheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempt++
	a.since = time.Now()
	a.ep, a.ic, a.sched = ep, ic, sched
}

func (a *app) current() (*endpoint.Client, *interaction.Client, *scheduler.Scheduler) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ep, a.ic, a.sched
}

// Status implements interactive.Target.
func (a *app) Status() interactive.Status {
	ep, ic, sched := a.current()

	a.mu.RLock()
	st := interactive.Status{
		Endpoint: a.cfg.Endpoint,
		State:    session.StateIdle.String(),
		Attempt:  a.attempt,
		Since:    a.since,
	}
	a.mu.RUnlock()
	if ep == nil {
		return st
	}

	sess := ep.Session()
	st.SessionID = ep.SessionID()
	st.State = sess.State().String()
	st.Location = ep.Location()
	if e := sess.LastError(); e != nil {
		st.LastError = e.Error()
	}
	st.Connected = ic.Connected()
	st.Objects = ep.Objects()
	st.Counter = ep.Reporter().Next() - 1
	st.Ticks = sched.Ticks()
	st.Reports = sched.Reports()
	st.Failures = sched.ReportFailures()
	return st
}

// Renew implements interactive.Target.
func (a *app) Renew(ctx context.Context) error {
	ep, _, _ := a.current()
	if ep == nil {
		return errNoSession
	}
	if !ep.Session().IsRegistered() {
		return fmt.Errorf("cannot renew in state %s", ep.Session().State())
	}
	return ep.Session().InitiateRenewal(ctx, a.cfg.RenewLifetime)
}

// Unregister implements interactive.Target.
func (a *app) Unregister(ctx context.Context) error {
	ep, _, _ := a.current()
	if ep == nil {
		return errNoSession
	}
	ok, err := ep.Session().InitiateUnregistration(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("nothing to unregister in state %s", ep.Session().State())
	}
	return nil
}

// Get implements interactive.Target.
func (a *app) Get(path string) ([]byte, error) {
	ep, _, _ := a.current()
	if ep == nil {
		return nil, errNoSession
	}
	return ep.Registry().GetValue(path)
}

// Set implements interactive.Target.
func (a *app) Set(path string, value []byte) error {
	ep, _, _ := a.current()
	if ep == nil {
		return errNoSession
	}
	return ep.Registry().SetValue(path, value)
}

// Paths implements interactive.Target.
func (a *app) Paths() []string {
	ep, _, _ := a.current()
	if ep == nil {
		return nil
	}
	paths := ep.Registry().Paths()
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

var _ interactive.Target = (*app)(nil)
