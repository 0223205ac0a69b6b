package transport

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// ErrConnectionClosed is returned by operations on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection states reported in protocol log events.
const (
	StateConnected    = "CONNECTED"
	StateDisconnected = "DISCONNECTED"
)

// Conn is one framed connection.
type Conn struct {
	conn   net.Conn
	framer *Framer
	id     string

	logger log.Logger

	closeCh   chan struct{}
	closeOnce sync.Once
	readMu    sync.Mutex
}

func newConn(nc net.Conn, maxSize uint32, logger log.Logger) *Conn {
	c := &Conn{
		conn:    nc,
		framer:  NewFramerWithMaxSize(nc, maxSize),
		id:      uuid.New().String(),
		logger:  logger,
		closeCh: make(chan struct{}),
	}
	if logger != nil {
		c.framer.SetLogger(logger, c.id)
	}
	c.logState("", StateConnected, "")
	return c
}

// ID returns the connection's UUID.
func (c *Conn) ID() string { return c.id }

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// TLSState returns the TLS state, if the connection is secured.
func (c *Conn) TLSState() (tls.ConnectionState, bool) {
	if tc, ok := c.conn.(*tls.Conn); ok {
		return tc.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.closeCh }

// Send writes one message.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive blocks for the next message. A zero timeout waits until a frame
// arrives or the connection closes.
func (c *Conn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		select {
		case <-c.closeCh:
			return nil, ErrConnectionClosed
		default:
		}
	}
	return data, err
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	return c.closeWithReason("")
}

func (c *Conn) closeWithReason(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.logState(StateConnected, StateDisconnected, reason)
	})
	return err
}

func (c *Conn) logState(from, to, reason string) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
