package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// Local port range used when no port is configured.
const (
	MinLocalPort = 1024
	MaxLocalPort = 65535
)

// DialConfig configures an outbound connection.
type DialConfig struct {
	// TLS secures the connection when set.
	TLS *tls.Config

	// LocalPort binds the local side. Zero lets the OS choose.
	LocalPort int

	// ConnectTimeout bounds dial and handshake (default: 30s).
	ConnectTimeout time.Duration

	// MaxMessageSize is the frame limit (default: 64KB).
	MaxMessageSize uint32

	Logger log.Logger
}

// RandomPort picks a local port in [MinLocalPort, MaxLocalPort).
func RandomPort() int {
	return MinLocalPort + rand.IntN(MaxLocalPort-MinLocalPort)
}

// Dial connects to address.
func Dial(ctx context.Context, address string, cfg DialConfig) (*Conn, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	if cfg.LocalPort > 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: cfg.LocalPort}
	}
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	if cfg.TLS != nil {
		tc := cfg.TLS
		if tc.ServerName == "" && !tc.InsecureSkipVerify {
			tc = tc.Clone()
			if host, _, err := net.SplitHostPort(address); err == nil {
				tc.ServerName = host
			}
		}
		tlsConn := tls.Client(nc, tc)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("TLS handshake: %w", err)
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("verify connection: %w", err)
		}
		nc = tlsConn
	}

	return newConn(nc, cfg.MaxMessageSize, cfg.Logger), nil
}
