package session_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/session"
	"github.com/mash-protocol/m2m-client/pkg/session/mocks"
)

var testIdentity = session.Identity{
	Name:     "node-1",
	Domain:   "test",
	Type:     "test",
	Lifetime: 100,
	Binding:  session.BindingTCP,
}

func newRegistered(t *testing.T, reg *mocks.MockRegistrar) *session.Session {
	t.Helper()
	reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
	s := session.NewSession(session.Config{Registrar: reg})
	require.NoError(t, s.InitiateRegistration(context.Background(), testIdentity, nil))
	s.OnRegistered()
	require.Equal(t, session.StateRegistered, s.State())
	return s
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state session.State
		want  string
	}{
		{session.StateIdle, "IDLE"},
		{session.StateRegistering, "REGISTERING"},
		{session.StateRegistered, "REGISTERED"},
		{session.StateUpdating, "UPDATING"},
		{session.StateUnregistering, "UNREGISTERING"},
		{session.StateUnregistered, "UNREGISTERED"},
		{session.StateFailed, "FAILED"},
		{session.State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	var got session.Registration
	reg.EXPECT().Register(mock.Anything, mock.Anything).
		Run(func(_ context.Context, r session.Registration) { got = r }).
		Return(nil).Once()
	reg.EXPECT().Renew(mock.Anything, uint32(100)).Return(nil).Once()
	reg.EXPECT().Unregister(mock.Anything).Return(nil).Once()

	sec := session.Security{ServerURI: "tcp://127.0.0.1:5683"}
	s := session.NewSession(session.Config{Registrar: reg, Security: sec})

	var (
		mu          sync.Mutex
		transitions []session.State
	)
	s.OnStateChange(func(_, newState session.State) {
		mu.Lock()
		transitions = append(transitions, newState)
		mu.Unlock()
	})

	ctx := context.Background()
	objects := session.ObjectSet{"3/0", "Test/0"}
	require.NoError(t, s.InitiateRegistration(ctx, testIdentity, objects))
	assert.Equal(t, "node-1", got.Identity.Name)
	assert.Equal(t, sec, got.Security)
	assert.Equal(t, objects, got.Objects)
	assert.False(t, s.IsRegistered())

	s.OnRegistered()
	assert.True(t, s.IsRegistered())
	assert.True(t, s.AwaitRegistered(ctx))

	require.NoError(t, s.InitiateRenewal(ctx, 100))
	assert.Equal(t, session.StateUpdating, s.State())
	assert.True(t, s.IsRegistered(), "updating keeps the registration")
	s.OnRenewed()
	assert.Equal(t, session.StateRegistered, s.State())

	wait, err := s.InitiateUnregistration(ctx)
	require.NoError(t, err)
	assert.True(t, wait)
	s.OnUnregistered()
	assert.True(t, s.IsUnregistered())
	assert.True(t, s.AwaitUnregistered(ctx))
	assert.Nil(t, s.LastError())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.State{
		session.StateRegistering,
		session.StateRegistered,
		session.StateUpdating,
		session.StateRegistered,
		session.StateUnregistering,
		session.StateUnregistered,
	}, transitions)
}

func TestInitiateRegistrationWithoutTransport(t *testing.T) {
	s := session.NewSession(session.Config{})

	err := s.InitiateRegistration(context.Background(), testIdentity, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNoTransport)
	assert.ErrorIs(t, err, session.ErrFailed)

	assert.Equal(t, session.StateFailed, s.State())
	require.NotNil(t, s.LastError())
	assert.Equal(t, session.KindInvalidParameters, s.LastError().Kind)
	assert.False(t, s.AwaitRegistered(context.Background()))
}

func TestInitiateRegistrationTwice(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	s := newRegistered(t, reg)

	err := s.InitiateRegistration(context.Background(), testIdentity, nil)
	assert.ErrorIs(t, err, session.ErrInvalidState)
	assert.Equal(t, session.StateRegistered, s.State())
}

func TestRegistrarErrorFailsSession(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	dnsErr := &net.DNSError{Err: "no such host", Name: "mgmt.invalid"}
	reg.EXPECT().Register(mock.Anything, mock.Anything).Return(dnsErr).Once()

	s := session.NewSession(session.Config{Registrar: reg})
	err := s.InitiateRegistration(context.Background(), testIdentity, nil)

	var serr *session.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, session.KindNameResolutionFailure, serr.Kind)
	assert.Equal(t, "register", serr.Op)
	assert.Equal(t, session.StateFailed, s.State())
}

func TestRenewalOnlyWhenRegistered(t *testing.T) {
	ctx := context.Background()

	t.Run("Idle", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := session.NewSession(session.Config{Registrar: reg})
		require.NoError(t, s.InitiateRenewal(ctx, 100))
		assert.Equal(t, session.StateIdle, s.State())
	})

	t.Run("Registering", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
		s := session.NewSession(session.Config{Registrar: reg})
		require.NoError(t, s.InitiateRegistration(ctx, testIdentity, nil))
		require.NoError(t, s.InitiateRenewal(ctx, 100))
		assert.Equal(t, session.StateRegistering, s.State())
	})

	t.Run("Updating", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := newRegistered(t, reg)
		reg.EXPECT().Renew(mock.Anything, uint32(100)).Return(nil).Once()
		require.NoError(t, s.InitiateRenewal(ctx, 100))
		// Second renewal while the first is in flight sends nothing.
		require.NoError(t, s.InitiateRenewal(ctx, 100))
		assert.Equal(t, session.StateUpdating, s.State())
	})

	t.Run("Failed", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := newRegistered(t, reg)
		s.OnError(session.KindNetworkUnreachable)
		require.NoError(t, s.InitiateRenewal(ctx, 100))
		assert.Equal(t, session.StateFailed, s.State())
	})
}

func TestInitiateUnregistration(t *testing.T) {
	ctx := context.Background()

	t.Run("NothingToUnregister", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := session.NewSession(session.Config{Registrar: reg})

		wait, err := s.InitiateUnregistration(ctx)
		require.NoError(t, err)
		assert.False(t, wait)
		assert.Equal(t, session.StateIdle, s.State())
	})

	t.Run("WhileRegistering", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
		reg.EXPECT().Unregister(mock.Anything).Return(nil).Once()
		s := session.NewSession(session.Config{Registrar: reg})
		require.NoError(t, s.InitiateRegistration(ctx, testIdentity, nil))

		wait, err := s.InitiateUnregistration(ctx)
		require.NoError(t, err)
		assert.True(t, wait)
		assert.Equal(t, session.StateUnregistering, s.State())

		// A late registered callback does not resurrect the session.
		s.OnRegistered()
		assert.Equal(t, session.StateUnregistering, s.State())
	})

	t.Run("AfterFailure", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := newRegistered(t, reg)
		s.OnError(session.KindTimeout)

		wait, err := s.InitiateUnregistration(ctx)
		require.NoError(t, err)
		assert.False(t, wait)
	})

	t.Run("RegistrarError", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := newRegistered(t, reg)
		reg.EXPECT().Unregister(mock.Anything).Return(errors.New("boom")).Once()

		wait, err := s.InitiateUnregistration(ctx)
		require.Error(t, err)
		assert.False(t, wait)
		assert.Equal(t, session.StateFailed, s.State())
		assert.Equal(t, session.KindUnknown, s.LastError().Kind)
		assert.False(t, s.AwaitUnregistered(ctx))
	})
}

func TestCallbacksIdempotent(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	s := newRegistered(t, reg)

	var changes int
	s.OnStateChange(func(_, _ session.State) { changes++ })

	s.OnRegistered()
	s.OnRenewed()
	assert.Equal(t, session.StateRegistered, s.State())
	assert.Zero(t, changes)
}

func TestOnRegisteredRequiresRegistering(t *testing.T) {
	s := session.NewSession(session.Config{Registrar: mocks.NewMockRegistrar(t)})
	s.OnRegistered()
	assert.Equal(t, session.StateIdle, s.State(), "registered must not skip Registering")
}

func TestTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()

	t.Run("Failed", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := newRegistered(t, reg)
		s.OnError(session.KindNetworkUnreachable)
		s.OnError(session.KindTimeout)
		s.OnRegistered()
		s.OnRenewed()
		s.OnUnregistered()

		assert.Equal(t, session.StateFailed, s.State())
		assert.Equal(t, session.KindNetworkUnreachable, s.LastError().Kind)
	})

	t.Run("Unregistered", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		s := newRegistered(t, reg)
		reg.EXPECT().Unregister(mock.Anything).Return(nil).Once()
		_, err := s.InitiateUnregistration(ctx)
		require.NoError(t, err)
		s.OnUnregistered()

		s.OnError(session.KindUnknown)
		s.OnRegistered()
		assert.Equal(t, session.StateUnregistered, s.State())
		assert.Nil(t, s.LastError())
	})
}

func TestErrorDuringRegistering(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
	s := session.NewSession(session.Config{Registrar: reg})
	require.NoError(t, s.InitiateRegistration(context.Background(), testIdentity, nil))

	result := make(chan bool, 1)
	go func() { result <- s.AwaitRegistered(context.Background()) }()

	s.OnError(session.KindNetworkUnreachable)

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AwaitRegistered did not return")
	}
	assert.Equal(t, session.StateFailed, s.State())
	assert.Equal(t, "register", s.LastError().Op)
}

func TestAwaitUnblocksOnTransition(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
	reg.EXPECT().Unregister(mock.Anything).Return(nil).Once()
	s := session.NewSession(session.Config{Registrar: reg})
	ctx := context.Background()

	registered := make(chan bool, 1)
	unregistered := make(chan bool, 1)
	go func() { registered <- s.AwaitRegistered(ctx) }()
	go func() { unregistered <- s.AwaitUnregistered(ctx) }()

	require.NoError(t, s.InitiateRegistration(ctx, testIdentity, nil))
	s.OnRegistered()
	select {
	case ok := <-registered:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AwaitRegistered did not return")
	}

	_, err := s.InitiateUnregistration(ctx)
	require.NoError(t, err)
	s.OnUnregistered()
	select {
	case ok := <-unregistered:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AwaitUnregistered did not return")
	}
}

func TestAwaitContextCancel(t *testing.T) {
	s := session.NewSession(session.Config{Registrar: mocks.NewMockRegistrar(t)})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, s.AwaitUnregistered(ctx))
	assert.Equal(t, session.StateIdle, s.State())
}

func TestOperationTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("Expires", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
		s := session.NewSession(session.Config{Registrar: reg, Timeout: 20 * time.Millisecond})
		require.NoError(t, s.InitiateRegistration(ctx, testIdentity, nil))

		waitCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		assert.False(t, s.AwaitRegistered(waitCtx))
		assert.Equal(t, session.StateFailed, s.State())
		assert.Equal(t, session.KindOperationTimeout, s.LastError().Kind)
		assert.Equal(t, "register", s.LastError().Op)
	})

	t.Run("CallbackDisarms", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
		s := session.NewSession(session.Config{Registrar: reg, Timeout: 20 * time.Millisecond})
		require.NoError(t, s.InitiateRegistration(ctx, testIdentity, nil))
		s.OnRegistered()

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, session.StateRegistered, s.State())
	})

	t.Run("StaleTimerIgnored", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
		reg.EXPECT().Renew(mock.Anything, mock.Anything).Return(nil).Once()
		s := session.NewSession(session.Config{Registrar: reg, Timeout: 40 * time.Millisecond})
		require.NoError(t, s.InitiateRegistration(ctx, testIdentity, nil))
		s.OnRegistered()

		// The renewal arms a fresh timer; the renewed callback disarms it.
		require.NoError(t, s.InitiateRenewal(ctx, 100))
		s.OnRenewed()

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, session.StateRegistered, s.State())
	})
}

func TestProtocolEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []log.Event
	)
	logger := log.LoggerFunc(func(e log.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	reg := mocks.NewMockRegistrar(t)
	reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
	s := session.NewSession(session.Config{Registrar: reg, SessionID: "sess-1", ProtocolLogger: logger})
	require.NoError(t, s.InitiateRegistration(context.Background(), testIdentity, nil))
	s.OnError(session.KindMalformedResponse)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)

	assert.Equal(t, log.CategoryState, events[0].Category)
	assert.Equal(t, "REGISTERING", events[0].StateChange.NewState)
	assert.Equal(t, "node-1", events[0].Endpoint)

	assert.Equal(t, log.CategoryError, events[1].Category)
	assert.Contains(t, events[1].Error.Message, "MALFORMED_RESPONSE")

	assert.Equal(t, "FAILED", events[2].StateChange.NewState)
	assert.Equal(t, "MALFORMED_RESPONSE", events[2].StateChange.Reason)
	for _, e := range events {
		assert.Equal(t, "sess-1", e.SessionID)
	}
}

func TestConcurrentReaders(t *testing.T) {
	reg := mocks.NewMockRegistrar(t)
	reg.EXPECT().Renew(mock.Anything, mock.Anything).Return(nil).Maybe()
	s := newRegistered(t, reg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st := s.State()
				assert.True(t, st == session.StateRegistered || st == session.StateUpdating)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.InitiateRenewal(ctx, 100)
				s.OnRenewed()
			}
		}()
	}
	wg.Wait()
	assert.True(t, s.IsRegistered())
}

func TestStateChangeOrder(t *testing.T) {
	t.Run("CallbackTransition", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Register(mock.Anything, mock.Anything).Return(nil).Once()
		s := session.NewSession(session.Config{Registrar: reg})

		var seen []session.State
		s.OnStateChange(func(_, newState session.State) {
			if newState == session.StateRegistering {
				s.OnError(session.KindTimeout)
			}
			seen = append(seen, newState)
		})
		require.NoError(t, s.InitiateRegistration(context.Background(), testIdentity, nil))

		assert.Equal(t, []session.State{session.StateRegistering, session.StateFailed}, seen)
		assert.Equal(t, session.StateFailed, s.State())
	})

	t.Run("Concurrent", func(t *testing.T) {
		reg := mocks.NewMockRegistrar(t)
		reg.EXPECT().Renew(mock.Anything, mock.Anything).Return(nil).Maybe()
		s := newRegistered(t, reg)
		ctx := context.Background()

		var (
			mu    sync.Mutex
			chain [][2]session.State
		)
		s.OnStateChange(func(oldState, newState session.State) {
			mu.Lock()
			chain = append(chain, [2]session.State{oldState, newState})
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					_ = s.InitiateRenewal(ctx, 100)
					s.OnRenewed()
				}
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, chain)
		assert.Equal(t, session.StateRegistered, chain[0][0])
		for i := 1; i < len(chain); i++ {
			require.Equal(t, chain[i-1][1], chain[i][0], "transition %d out of order", i)
		}
		assert.Equal(t, s.State(), chain[len(chain)-1][1])
	})
}
