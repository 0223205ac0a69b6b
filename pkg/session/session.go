package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// Config configures a Session.
type Config struct {
	// Registrar performs outbound operations. A nil Registrar makes
	// InitiateRegistration fail with ErrNoTransport.
	Registrar Registrar

	// Security is handed to the Registrar unchanged.
	Security Security

	// Timeout bounds each outbound operation. Zero disables it.
	Timeout time.Duration

	// SessionID tags protocol log events.
	SessionID string

	// ProtocolLogger receives state change and error events.
	ProtocolLogger log.Logger

	// Logger is the operational logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Session is the registration state machine of one endpoint.
// It is safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	state   State
	lastErr *Error

	// changed is closed and replaced on every transition.
	changed chan struct{}

	registrar Registrar
	security  Security
	endpoint  string

	// Operation timeout
	timeout time.Duration
	timer   *time.Timer
	opGen   uint64

	id       string
	protoLog log.Logger
	logger   *slog.Logger

	onStateChange func(oldState, newState State)

	// Transitions waiting to be reported, in the order they were applied.
	pending  []transition
	flushing bool
}

// transition is an applied state change not yet reported.
type transition struct {
	old, to State
	serr    *Error
}

// NewSession creates a session in StateIdle.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionID != "" {
		logger = logger.With("session_id", cfg.SessionID)
	}

	return &Session{
		state:     StateIdle,
		changed:   make(chan struct{}),
		registrar: cfg.Registrar,
		security:  cfg.Security,
		timeout:   cfg.Timeout,
		id:        cfg.SessionID,
		protoLog:  log.OrNoop(cfg.ProtocolLogger),
		logger:    logger,
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsRegistered returns true while the server holds a registration
// (Registered or Updating).
func (s *Session) IsRegistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsRegistered()
}

// IsUnregistered returns true once unregistration completed.
func (s *Session) IsUnregistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateUnregistered
}

// LastError returns the failure that moved the session to StateFailed,
// or nil.
func (s *Session) LastError() *Error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// OnStateChange sets a callback for state changes. The callback runs
// outside the session lock. Callbacks are delivered one at a time in the
// order the transitions were applied, possibly on the goroutine of a
// concurrent transition.
func (s *Session) OnStateChange(fn func(oldState, newState State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = fn
}

// InitiateRegistration moves an idle session to Registering and sends the
// register request. Without a registrar the session fails with
// KindInvalidParameters and the returned error wraps ErrNoTransport.
func (s *Session) InitiateRegistration(ctx context.Context, identity Identity, objects ObjectSet) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: register in %s", ErrInvalidState, state)
	}
	s.endpoint = identity.Name
	if s.registrar == nil {
		s.mu.Unlock()
		err := &Error{Kind: KindInvalidParameters, Op: "register", Err: ErrNoTransport}
		s.fail(err)
		return err
	}
	reg := s.registrar
	security := s.security
	s.setStateLocked(StateRegistering, nil)
	s.mu.Unlock()
	s.flush()

	err := reg.Register(ctx, Registration{
		Identity: identity,
		Security: security,
		Objects:  objects,
	})
	if err != nil {
		return s.outboundFailed("register", err)
	}
	return nil
}

// InitiateRenewal sends an update with the given lifetime. It is a no-op
// unless the session is Registered.
func (s *Session) InitiateRenewal(ctx context.Context, lifetime uint32) error {
	s.mu.Lock()
	if s.state != StateRegistered {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("renewal skipped", "state", state)
		return nil
	}
	reg := s.registrar
	s.setStateLocked(StateUpdating, nil)
	s.mu.Unlock()
	s.flush()

	if err := reg.Renew(ctx, lifetime); err != nil {
		return s.outboundFailed("renew", err)
	}
	return nil
}

// InitiateUnregistration sends a deregister request when the session is
// Registering, Registered or Updating, and returns true: the caller should
// wait for AwaitUnregistered. In any other state it returns false, meaning
// there is nothing to unregister and the caller can terminate now.
func (s *Session) InitiateUnregistration(ctx context.Context) (bool, error) {
	s.mu.Lock()
	switch s.state {
	case StateRegistering, StateRegistered, StateUpdating:
	default:
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("nothing to unregister", "state", state)
		return false, nil
	}
	reg := s.registrar
	s.setStateLocked(StateUnregistering, nil)
	s.mu.Unlock()
	s.flush()

	if err := reg.Unregister(ctx); err != nil {
		return false, s.outboundFailed("unregister", err)
	}
	return true, nil
}

// OnRegistered handles the registered callback. It is accepted only while
// Registering.
func (s *Session) OnRegistered() {
	s.accept("registered", StateRegistered, StateRegistering)
}

// OnRenewed handles the update-completed callback.
func (s *Session) OnRenewed() {
	s.accept("renewed", StateRegistered, StateUpdating)
}

// OnUnregistered handles the deregistered callback.
func (s *Session) OnUnregistered() {
	s.accept("unregistered", StateUnregistered, StateUnregistering)
}

// OnError moves the session to Failed. Errors after a terminal state are
// ignored.
func (s *Session) OnError(kind ErrorKind) {
	s.fail(&Error{Kind: kind})
}

// AwaitRegistered blocks until the session is registered (true), or until
// it fails, starts unregistering or ctx is done (false).
func (s *Session) AwaitRegistered(ctx context.Context) bool {
	return s.await(ctx, func(st State) (bool, bool) {
		switch st {
		case StateRegistered, StateUpdating:
			return true, true
		case StateUnregistering, StateUnregistered, StateFailed:
			return true, false
		}
		return false, false
	})
}

// AwaitUnregistered blocks until the session is unregistered (true), or
// until it fails or ctx is done (false).
func (s *Session) AwaitUnregistered(ctx context.Context) bool {
	return s.await(ctx, func(st State) (bool, bool) {
		switch st {
		case StateUnregistered:
			return true, true
		case StateFailed:
			return true, false
		}
		return false, false
	})
}

// Changed returns a channel that is closed on the next transition.
func (s *Session) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

func (s *Session) await(ctx context.Context, cond func(State) (done, ok bool)) bool {
	for {
		s.mu.RLock()
		state, ch := s.state, s.changed
		s.mu.RUnlock()

		if done, ok := cond(state); done {
			return ok
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

// accept applies an inbound success callback that is valid only from the
// given state.
func (s *Session) accept(event string, to, from State) {
	s.mu.Lock()
	switch s.state {
	case from:
	case to:
		s.mu.Unlock()
		s.logger.Debug("duplicate callback", "event", event, "state", to)
		return
	default:
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("callback ignored", "event", event, "state", state)
		return
	}
	s.setStateLocked(to, nil)
	s.mu.Unlock()
	s.flush()
}

// outboundFailed classifies a synchronous Registrar error and fails the
// session with it.
func (s *Session) outboundFailed(op string, err error) error {
	serr := &Error{Kind: KindOf(err), Op: op, Err: err}
	s.fail(serr)
	return serr
}

// fail moves a non-terminal session to Failed.
func (s *Session) fail(serr *Error) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("error ignored", "kind", serr.Kind, "state", state)
		return
	}
	if serr.Op == "" {
		serr.Op = s.state.op()
	}
	s.failLocked(serr)
	s.mu.Unlock()
	s.flush()
}

// failLocked records serr and moves to Failed. Caller must hold s.mu.
func (s *Session) failLocked(serr *Error) {
	s.lastErr = serr
	s.setStateLocked(StateFailed, serr)
}

func (s *Session) reportFailure(endpoint string, serr *Error) {
	s.logger.Error("session failed", "kind", serr.Kind, "op", serr.Op, "error", serr.Err)
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Endpoint:  endpoint,
		Layer:     log.LayerSession,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: serr.Error(),
			Context: serr.Op,
		},
	})
}

// setStateLocked applies a transition, queues its report, wakes waiters
// and re-arms the operation timer. Caller must hold s.mu and call flush
// after unlocking.
func (s *Session) setStateLocked(to State, serr *Error) {
	s.pending = append(s.pending, transition{old: s.state, to: to, serr: serr})
	s.state = to
	close(s.changed)
	s.changed = make(chan struct{})

	s.opGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.timeout > 0 && to.isPending() {
		gen := s.opGen
		s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })
	}
}

// expire fails the session if the operation of generation gen is still
// pending.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.opGen || !s.state.isPending() {
		s.mu.Unlock()
		return
	}
	serr := &Error{
		Kind: KindOperationTimeout,
		Op:   s.state.op(),
		Err:  fmt.Errorf("no response within %s", s.timeout),
	}
	s.failLocked(serr)
	s.mu.Unlock()
	s.flush()
}

// flush reports queued transitions in order. One goroutine flushes at a
// time; transitions queued meanwhile, including from inside a callback,
// are reported by that goroutine.
func (s *Session) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.pending) > 0 {
		tr := s.pending[0]
		s.pending = s.pending[1:]
		cb := s.onStateChange
		endpoint := s.endpoint
		s.mu.Unlock()

		s.report(tr, endpoint, cb)

		s.mu.Lock()
	}
	s.pending = nil
	s.flushing = false
	s.mu.Unlock()
}

func (s *Session) report(tr transition, endpoint string, cb func(oldState, newState State)) {
	old, to := tr.old, tr.to
	reason := ""
	if tr.serr != nil {
		s.reportFailure(endpoint, tr.serr)
		reason = tr.serr.Kind.String()
	}

	s.logger.Info("session state", "from", old, "to", to)
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Endpoint:  endpoint,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})

	if cb != nil {
		cb(old, to)
	}
}
