package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-client/pkg/interaction"
	"github.com/mash-protocol/m2m-client/pkg/scheduler"
	"github.com/mash-protocol/m2m-client/pkg/transport"
)

const waitFor = 5 * time.Second

func testApp(t *testing.T, server string) *app {
	t.Helper()
	cfg := defaultConfig()
	cfg.Endpoint = "node-app"
	cfg.Server = server
	cfg.OperationTimeout = waitFor
	cfg.RenewInterval = time.Hour
	cfg.TickInterval = 10 * time.Millisecond
	cfg.ReportThreshold = 3
	require.NoError(t, validateConfig(&cfg))
	applyDefaults(&cfg)

	return &app{
		cfg:    cfg,
		stop:   make(chan struct{}, 1),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func startManagementServer(t *testing.T) (*interaction.Server, string) {
	t.Helper()
	srv, err := interaction.NewServer(interaction.ServerConfig{})
	require.NoError(t, err)
	ts := transport.NewServer(transport.ServerConfig{
		Address:      "127.0.0.1:0",
		OnMessage:    srv.HandleMessage,
		OnDisconnect: srv.HandleDisconnect,
	})
	require.NoError(t, ts.Start(context.Background()))
	t.Cleanup(func() { ts.Stop() })
	return srv, "tcp://" + ts.Addr().String()
}

func TestRunSessionLifecycle(t *testing.T) {
	srv, uri := startManagementServer(t)
	a := testApp(t, uri)

	assert.Equal(t, "IDLE", a.Status().State)
	_, err := a.Get("/Test/0/D")
	assert.ErrorIs(t, err, errNoSession)

	errCh := make(chan error, 1)
	go func() { errCh <- a.runSession(context.Background()) }()

	require.Eventually(t, func() bool {
		return a.Status().State == "REGISTERED"
	}, waitFor, 10*time.Millisecond)

	st := a.Status()
	assert.Equal(t, "node-app", st.Endpoint)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, "/rd/1", st.Location)
	assert.True(t, st.Connected)
	assert.Equal(t, 1, st.Attempt)
	assert.Contains(t, a.Paths(), "/Test/0/D")

	require.Eventually(t, func() bool {
		_, ok := srv.LastValue("node-app", "/Test/0/D")
		return ok
	}, waitFor, 10*time.Millisecond, "counter is reported")

	require.NoError(t, a.Renew(context.Background()))

	a.requestStop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not end after stop request")
	}

	assert.Equal(t, "UNREGISTERED", a.Status().State)
	assert.Empty(t, srv.Registrations())
}

func TestLoopFailsWithoutRetry(t *testing.T) {
	_, uri := startManagementServer(t)
	a := testApp(t, uri)
	a.cfg.Security = "psk"

	err := a.loop(context.Background())
	require.ErrorIs(t, err, scheduler.ErrSessionFailed)
	assert.Equal(t, "FAILED", a.Status().State)
	assert.Equal(t, 1, a.Status().Attempt)
}

func TestRequestStopDoesNotBlock(t *testing.T) {
	a := testApp(t, "tcp://127.0.0.1:5683")
	a.requestStop()
	a.requestStop()
	assert.Len(t, a.stop, 1)
}
