package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g. ":5684" or "127.0.0.1:0").
	Address string

	// TLS secures accepted connections when set.
	TLS *tls.Config

	// MaxMessageSize is the frame limit (default: 64KB).
	MaxMessageSize uint32

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *Conn)

	// OnDisconnect is called after a connection is closed.
	OnDisconnect func(conn *Conn)

	// OnMessage is called from the connection's read goroutine for every
	// received frame.
	OnMessage func(conn *Conn, msg []byte)

	// OnError is called for accept, handshake and read errors. conn is nil
	// for errors before a connection exists.
	OnError func(conn *Conn, err error)
}

// Server accepts framed connections from endpoints.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*Conn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
	}
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and all connections, then waits for their
// goroutines.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.RLock()
	for c := range s.conns {
		c.Close()
	}
	s.connsMu.RUnlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.reportError(nil, fmt.Errorf("accept: %w", err))
			continue
		}
		s.wg.Add(1)
		go s.handle(nc)
	}
}

func (s *Server) handle(nc net.Conn) {
	defer s.wg.Done()

	if s.config.TLS != nil {
		tlsConn := tls.Server(nc, s.config.TLS)
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			nc.Close()
			s.reportError(nil, fmt.Errorf("TLS handshake: %w", err))
			return
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			s.reportError(nil, err)
			return
		}
		nc = tlsConn
	}

	c := newConn(nc, s.config.MaxMessageSize, s.config.Logger)

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		c.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(c)
	}

	reason := s.readLoop(c)
	c.closeWithReason(reason)

	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(c)
	}
}

func (s *Server) readLoop(c *Conn) string {
	for {
		data, err := c.Receive(0)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				return ""
			}
			if s.running.Load() {
				s.reportError(c, err)
			}
			return err.Error()
		}
		if s.config.OnMessage != nil {
			s.config.OnMessage(c, data)
		}
	}
}

func (s *Server) reportError(c *Conn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(c, err)
	}
}
