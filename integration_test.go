package m2m_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-client/pkg/endpoint"
	"github.com/mash-protocol/m2m-client/pkg/interaction"
	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/persistence"
	"github.com/mash-protocol/m2m-client/pkg/scheduler"
	"github.com/mash-protocol/m2m-client/pkg/session"
	"github.com/mash-protocol/m2m-client/pkg/transport"
)

const waitFor = 5 * time.Second

// TestE2E_CertificateLifecycle runs a full session over mutually
// authenticated TLS: register, report, block transfers, deregister.
func TestE2E_CertificateLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pki := newTestPKI(t)
	srv, uri := startTLSServer(t, pki.file("server"), pki.caFile)

	logPath := filepath.Join(t.TempDir(), "client.mlog")
	fl, err := log.NewFileLogger(logPath)
	require.NoError(t, err)

	statePath := filepath.Join(t.TempDir(), "endpoint.json")
	ep, ic := newEndpoint(t, "node-tls", session.Security{
		ServerURI: uri,
		Mode:      session.SecurityCertificate,
		CertFile:  pki.file("node-tls").cert,
		KeyFile:   pki.file("node-tls").key,
		CAFile:    pki.caFile,
	}, fl, persistence.NewEndpointStateStore(statePath))

	ctx, cancel := context.WithTimeout(context.Background(), 2*waitFor)
	defer cancel()
	require.NoError(t, ep.Register(ctx))
	assert.True(t, ic.Connected())
	assert.Equal(t, "/rd/1", ep.Location())

	t.Run("block-wise write and read back", func(t *testing.T) {
		value := []byte("value delivered in eleven byte blocks")
		require.NoError(t, srv.WriteBlocks(ctx, "node-tls", "/Test/0/D", value, 11))

		v, err := ep.Registry().GetValue("/Test/0/D")
		require.NoError(t, err)
		assert.Equal(t, value, v)

		got, err := srv.ReadBlocks(ctx, "node-tls", "/Test/0/D", 11)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})

	sched := scheduler.New(scheduler.Config{
		Session:         ep.Session(),
		Reporter:        ep.Reporter(),
		RenewInterval:   50 * time.Millisecond,
		RenewLifetime:   100,
		TickInterval:    5 * time.Millisecond,
		ReportThreshold: 2,
	})
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	t.Run("counter is reported", func(t *testing.T) {
		require.Eventually(t, func() bool {
			_, ok := srv.LastValue("node-tls", "/Test/0/D")
			return ok
		}, waitFor, 10*time.Millisecond)
		assert.Positive(t, sched.Reports())
	})

	t.Run("renewals keep the registration", func(t *testing.T) {
		require.Eventually(t, func() bool {
			for _, r := range srv.Registrations() {
				if r.Endpoint == "node-tls" && !r.LastUpdateAt.IsZero() {
					return true
				}
			}
			return false
		}, waitFor, 10*time.Millisecond)
		assert.True(t, ep.Session().IsRegistered())
	})

	t.Run("deregister ends the scheduler", func(t *testing.T) {
		ok, err := ep.Session().InitiateUnregistration(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("scheduler did not stop after deregistration")
		}
		assert.True(t, ep.Session().IsUnregistered())
		assert.Empty(t, srv.Registrations())
	})

	t.Run("protocol log", func(t *testing.T) {
		require.NoError(t, fl.Close())
		r, err := log.NewReader(logPath)
		require.NoError(t, err)
		defer r.Close()
		events, err := r.All()
		require.NoError(t, err)

		layers := map[log.Layer]int{}
		for _, e := range events {
			layers[e.Layer]++
		}
		assert.Positive(t, layers[log.LayerTransport])
		assert.Positive(t, layers[log.LayerSession])
		assert.Zero(t, fl.Dropped())
	})

	t.Run("state survives the session", func(t *testing.T) {
		st, err := persistence.NewEndpointStateStore(statePath).Load()
		require.NoError(t, err)
		assert.NotZero(t, st.Counter)
	})
}

// TestE2E_UntrustedServer fails the session when the server certificate
// is not signed by the configured CA.
func TestE2E_UntrustedServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	serverPKI := newTestPKI(t)
	clientPKI := newTestPKI(t)
	srv, uri := startTLSServer(t, serverPKI.file("server"), "")

	ep, _ := newEndpoint(t, "node-untrusted", session.Security{
		ServerURI: uri,
		Mode:      session.SecurityCertificate,
		CAFile:    clientPKI.caFile,
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := ep.Register(ctx)
	require.Error(t, err)

	assert.Equal(t, session.StateFailed, ep.Session().State())
	require.NotNil(t, ep.Session().LastError())
	assert.Equal(t, session.KindSecureChannelFailure, ep.Session().LastError().Kind)
	assert.Empty(t, srv.Registrations())
}

// TestE2E_SchemeMismatch rejects a tls:// server without certificate
// security before dialing.
func TestE2E_SchemeMismatch(t *testing.T) {
	ep, _ := newEndpoint(t, "node-plain", session.Security{
		ServerURI: "tls://127.0.0.1:1",
		Mode:      session.SecurityNone,
	}, nil, nil)

	err := ep.Register(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.KindInvalidParameters, ep.Session().LastError().Kind)
}

func newEndpoint(t *testing.T, name string, sec session.Security, protoLog log.Logger, state *persistence.EndpointStateStore) (*endpoint.Client, *interaction.Client) {
	t.Helper()
	ic := interaction.NewClient(interaction.Config{
		Dial:           transport.DialConfig{LocalPort: transport.RandomPort()},
		ProtocolLogger: protoLog,
	})
	t.Cleanup(func() { ic.Close() })

	cfg := endpoint.Config{
		Identity: session.Identity{
			Name:     name,
			Domain:   "domain",
			Type:     "test",
			Lifetime: 100,
			Binding:  session.BindingTCP,
		},
		Security:       sec,
		Registrar:      ic,
		Timeout:        waitFor,
		State:          state,
		ProtocolLogger: protoLog,
	}
	ep, err := endpoint.New(cfg)
	require.NoError(t, err)
	ic.SetObserver(ep)
	return ep, ic
}

func startTLSServer(t *testing.T, pair keyPair, caFile string) (*interaction.Server, string) {
	t.Helper()
	tc, err := transport.NewServerTLSConfig(transport.TLSConfig{
		CertFile: pair.cert,
		KeyFile:  pair.key,
		CAFile:   caFile,
	})
	require.NoError(t, err)

	srv, err := interaction.NewServer(interaction.ServerConfig{})
	require.NoError(t, err)
	ts := transport.NewServer(transport.ServerConfig{
		Address:      "127.0.0.1:0",
		TLS:          tc,
		OnMessage:    srv.HandleMessage,
		OnDisconnect: srv.HandleDisconnect,
	})
	require.NoError(t, ts.Start(context.Background()))
	t.Cleanup(func() { ts.Stop() })
	return srv, "tls://" + ts.Addr().String()
}

type keyPair struct {
	cert, key string
}

// testPKI is a throwaway CA that issues certificates into a temp dir.
type testPKI struct {
	t      *testing.T
	dir    string
	ca     *x509.Certificate
	caKey  *ecdsa.PrivateKey
	caFile string
	serial int64
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "m2m test CA"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	p := &testPKI{t: t, dir: t.TempDir(), ca: ca, caKey: key, serial: 1}
	p.caFile = filepath.Join(p.dir, "ca.crt")
	writePEM(t, p.caFile, "CERTIFICATE", der)
	return p
}

// file issues a certificate for name, usable for both TLS roles.
func (p *testPKI) file(name string) keyPair {
	t := p.t
	t.Helper()
	pair := keyPair{
		cert: filepath.Join(p.dir, name+".crt"),
		key:  filepath.Join(p.dir, name+".key"),
	}
	if _, err := os.Stat(pair.cert); err == nil {
		return pair
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p.serial++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(p.serial),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{name, "localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, p.ca, &key.PublicKey, p.caKey)
	require.NoError(t, err)
	writePEM(t, pair.cert, "CERTIFICATE", der)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	writePEM(t, pair.key, "EC PRIVATE KEY", keyDER)
	return pair
}

func writePEM(t *testing.T, path, typ string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
}
