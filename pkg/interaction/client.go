package interaction

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mash-protocol/m2m-client/pkg/blockwise"
	"github.com/mash-protocol/m2m-client/pkg/endpoint"
	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/session"
	"github.com/mash-protocol/m2m-client/pkg/transport"
	"github.com/mash-protocol/m2m-client/pkg/wire"
)

const tracerName = "github.com/mash-protocol/m2m-client/pkg/interaction"

// Client errors.
var (
	ErrNotConnected   = errors.New("not connected")
	ErrNoResolver     = errors.New("no resolver for mdns server URI")
	ErrPSKUnsupported = errors.New("pre-shared key security is not supported")
)

// Config configures a Client.
type Config struct {
	// Observer receives lifecycle callbacks and serves server requests.
	// It can also be set later with SetObserver.
	Observer endpoint.Observer

	// Resolver resolves mdns server URIs.
	Resolver Resolver

	// Dial configures the connection. TLS is derived from the security
	// context and must not be set.
	Dial transport.DialConfig

	// RequestTimeout bounds Notify (default: DefaultRequestTimeout).
	RequestTimeout time.Duration

	SessionID      string
	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// Client is the endpoint side of the management protocol. It implements
// session.Registrar.
type Client struct {
	resolver  Resolver
	dial      transport.DialConfig
	timeout   time.Duration
	sessionID string
	protoLog  log.Logger
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.RWMutex
	observer endpoint.Observer
	conn     *transport.Conn
	peer     *peer
	location string
	done     chan struct{}
}

// NewClient creates a client. It connects on Register.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Dial.Logger == nil {
		cfg.Dial.Logger = cfg.ProtocolLogger
	}
	return &Client{
		observer:  cfg.Observer,
		resolver:  cfg.Resolver,
		dial:      cfg.Dial,
		timeout:   cfg.RequestTimeout,
		sessionID: cfg.SessionID,
		protoLog:  cfg.ProtocolLogger,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// SetObserver sets the callback target.
func (c *Client) SetObserver(o endpoint.Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Location returns the registration location, or "" when unregistered.
func (c *Client) Location() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.location
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Register connects to the server named by the security context and sends
// the register request. The outcome is reported to the observer.
func (c *Client) Register(ctx context.Context, reg session.Registration) error {
	ctx, span := c.tracer.Start(ctx, "m2m.register",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("m2m.endpoint", reg.Identity.Name),
			attribute.String("m2m.server_uri", reg.Security.ServerURI),
			attribute.String("m2m.security", reg.Security.Mode.String()),
		),
	)

	p, err := c.connect(ctx, reg.Security)
	if err != nil {
		return finish(span, err)
	}

	id := reg.Identity
	_, err = p.start(wire.OpRegister, &wire.RegisterPayload{
		Endpoint:     id.Name,
		Domain:       id.Domain,
		EndpointType: id.Type,
		Lifetime:     id.Lifetime,
		Binding:      string(id.Binding),
		Objects:      reg.Objects,
		Device: wire.DeviceInfo{
			Manufacturer: id.Device.Manufacturer,
			DeviceType:   id.Device.DeviceType,
			ModelNumber:  id.Device.ModelNumber,
			SerialNumber: id.Device.SerialNumber,
		},
	}, c.onRegisterResponse)
	return finish(span, err)
}

// Renew sends an update with the given lifetime.
func (c *Client) Renew(ctx context.Context, lifetime uint32) error {
	_, span := c.tracer.Start(ctx, "m2m.renew",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("m2m.lifetime", int64(lifetime))),
	)

	p, location, err := c.registered("renew")
	if err != nil {
		return finish(span, err)
	}
	span.SetAttributes(attribute.String("m2m.location", location))
	_, err = p.start(wire.OpUpdate, &wire.UpdatePayload{Location: location, Lifetime: lifetime}, c.onUpdateResponse)
	return finish(span, err)
}

// Unregister sends a deregister request. If registration has not completed
// yet, the connection is dropped and the endpoint reported unregistered.
func (c *Client) Unregister(ctx context.Context) error {
	_, span := c.tracer.Start(ctx, "m2m.unregister", trace.WithSpanKind(trace.SpanKindClient))

	c.mu.RLock()
	p, location, connected := c.peer, c.location, c.conn != nil
	c.mu.RUnlock()

	if !connected {
		return finish(span, &session.Error{Kind: session.KindNotRegistered, Op: "unregister", Err: ErrNotConnected})
	}
	if location == "" {
		c.logger.Info("unregistering before registration completed")
		c.disconnect()
		c.currentObserver().OnUnregistered()
		return finish(span, nil)
	}

	span.SetAttributes(attribute.String("m2m.location", location))
	_, err := p.start(wire.OpDeregister, &wire.DeregisterPayload{Location: location}, c.onDeregisterResponse)
	return finish(span, err)
}

// Notify reports a locally changed value to the server and waits for the
// acknowledgement. It must not be called from an observer callback.
func (c *Client) Notify(ctx context.Context, path string, value []byte) error {
	ctx, span := c.tracer.Start(ctx, "m2m.notify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("m2m.path", path), attribute.Int("m2m.size", len(value))),
	)

	p, _, err := c.registered("notify")
	if err != nil {
		return finish(span, err)
	}
	resp, err := p.request(ctx, wire.OpNotify, &wire.NotifyPayload{Path: path, Value: value}, c.timeout)
	if err != nil {
		return finish(span, err)
	}
	if !resp.Status.IsSuccess() {
		return finish(span, statusError(resp))
	}
	return finish(span, nil)
}

// Close drops the connection without deregistering.
func (c *Client) Close() error {
	c.disconnect()
	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()
	if done != nil {
		<-done
	}
	return nil
}

func (c *Client) connect(ctx context.Context, sec session.Security) (*peer, error) {
	c.mu.RLock()
	p := c.peer
	c.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	uri, err := ParseServerURI(sec.ServerURI)
	if err != nil {
		return nil, &session.Error{Kind: session.KindInvalidParameters, Op: "register", Err: err}
	}
	dial := c.dial
	dial.TLS, err = tlsFor(uri, sec)
	if err != nil {
		return nil, err
	}

	address := uri.Address
	if uri.Scheme == SchemeMDNS {
		if c.resolver == nil {
			return nil, &session.Error{Kind: session.KindNameResolutionFailure, Op: "register", Err: ErrNoResolver}
		}
		address, err = c.resolver.Resolve(ctx, uri.Instance)
		if err != nil {
			return nil, &session.Error{Kind: session.KindNameResolutionFailure, Op: "register", Err: err}
		}
	}

	conn, err := transport.Dial(ctx, address, dial)
	if err != nil {
		return nil, err
	}
	c.logger.Info("connected", "server", address, "local", conn.LocalAddr().String(), "conn_id", conn.ID())

	done := make(chan struct{})
	p = newPeer(conn, conn.ID(), c.sessionID, c.protoLog)

	c.mu.Lock()
	c.conn, c.peer, c.done = conn, p, done
	c.mu.Unlock()

	go c.readLoop(conn, p, done)
	return p, nil
}

// tlsFor derives the TLS configuration from the security context.
func tlsFor(uri ServerURI, sec session.Security) (*tls.Config, error) {
	switch sec.Mode {
	case session.SecurityNone:
		if uri.Scheme == SchemeTLS {
			return nil, &session.Error{
				Kind: session.KindInvalidParameters, Op: "register",
				Err: fmt.Errorf("%s scheme needs certificate security", SchemeTLS),
			}
		}
		return nil, nil
	case session.SecurityCertificate:
		tc, err := transport.NewClientTLSConfig(transport.TLSConfig{
			CertFile: sec.CertFile,
			KeyFile:  sec.KeyFile,
			CAFile:   sec.CAFile,
		})
		if err != nil {
			return nil, &session.Error{Kind: session.KindSecureChannelFailure, Op: "register", Err: err}
		}
		return tc, nil
	default:
		return nil, &session.Error{Kind: session.KindSecureChannelFailure, Op: "register", Err: ErrPSKUnsupported}
	}
}

func (c *Client) registered(op string) (*peer, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.peer == nil || c.location == "" {
		return nil, "", &session.Error{Kind: session.KindNotRegistered, Op: op, Err: ErrNotConnected}
	}
	return c.peer, c.location, nil
}

func (c *Client) currentObserver() endpoint.Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observer
}

// disconnect closes the connection on purpose; the read loop then exits
// without reporting an error.
func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.peer, c.location = nil, nil, ""
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) readLoop(conn *transport.Conn, p *peer, done chan struct{}) {
	defer close(done)

	for {
		data, err := conn.Receive(0)
		if err != nil {
			c.connectionLost(conn, p, err)
			return
		}

		msg, err := wire.DecodeMessage(data)
		if err != nil {
			c.logger.Warn("message dropped", "error", err)
			continue
		}
		if msg.Response {
			if err := p.deliver(msg); err != nil {
				c.logger.Debug("response dropped", "msg_id", msg.MessageID, "operation", msg.Operation, "error", err)
			}
			continue
		}
		p.logMessage(msg, log.DirectionIn, nil)
		c.handleRequest(p, msg)
	}
}

func (c *Client) connectionLost(conn *transport.Conn, p *peer, err error) {
	p.close()
	conn.Close()

	// A connection no longer current was closed on purpose.
	c.mu.Lock()
	lost := c.conn == conn
	if lost {
		c.conn, c.peer, c.location = nil, nil, ""
	}
	c.mu.Unlock()
	if !lost {
		return
	}

	kind := session.KindOf(err)
	if kind == session.KindUnknown {
		kind = session.KindNetworkUnreachable
	}
	c.logger.Warn("connection lost", "error", err, "kind", kind)
	if o := c.currentObserver(); o != nil {
		o.OnError(kind)
	}
}

func (c *Client) onRegisterResponse(resp *wire.Message) {
	o := c.currentObserver()
	if resp.Status != wire.StatusSuccess {
		c.logger.Warn("registration rejected", "status", resp.Status, "error", statusError(resp))
		o.OnError(KindForStatus(resp.Status))
		return
	}
	var res wire.RegisterResult
	if err := resp.DecodePayload(&res); err != nil || res.Location == "" {
		c.logger.Warn("registration response without location", "error", err)
		o.OnError(session.KindMalformedResponse)
		return
	}

	c.mu.Lock()
	c.location = res.Location
	c.mu.Unlock()

	if lo, ok := o.(endpoint.LocationObserver); ok {
		lo.OnLocationAssigned(res.Location)
	}
	o.OnRegistered()
}

func (c *Client) onUpdateResponse(resp *wire.Message) {
	o := c.currentObserver()
	if resp.Status != wire.StatusSuccess {
		c.logger.Warn("update rejected", "status", resp.Status)
		o.OnError(KindForStatus(resp.Status))
		return
	}
	o.OnRenewed()
}

func (c *Client) onDeregisterResponse(resp *wire.Message) {
	o := c.currentObserver()
	if resp.Status != wire.StatusSuccess {
		c.logger.Warn("deregistration rejected", "status", resp.Status)
		o.OnError(KindForStatus(resp.Status))
		return
	}
	c.disconnect()
	o.OnUnregistered()
}

func (c *Client) handleRequest(p *peer, req *wire.Message) {
	var err error
	switch req.Operation {
	case wire.OpRead:
		err = c.handleRead(p, req)
	case wire.OpWrite:
		err = c.handleWrite(p, req)
	case wire.OpExecute:
		err = c.handleExecute(p, req)
	default:
		err = p.respondError(req, wire.StatusBadRequest, fmt.Errorf("%s is not served by an endpoint", req.Operation))
	}
	if err != nil {
		c.logger.Warn("response not sent", "operation", req.Operation, "msg_id", req.MessageID, "error", err)
	}
}

func (c *Client) handleRead(p *peer, req *wire.Message) error {
	var rp wire.ReadPayload
	if err := req.DecodePayload(&rp); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}
	o := c.currentObserver()

	if rp.Block == nil {
		value, err := o.OnRead(rp.Path)
		if err != nil {
			return p.respondError(req, StatusFor(err), err)
		}
		return p.respond(req, wire.StatusSuccess, &wire.ReadResult{Value: value})
	}

	value, total := o.OnBlockRequested(rp.Path)
	if value == nil {
		return p.respondError(req, wire.StatusNotFound, fmt.Errorf("nothing to send for %s", rp.Path))
	}
	chunk, more, err := blockwise.Window(value, rp.Block.Num, int(rp.Block.Size))
	if err != nil {
		return p.respondError(req, StatusFor(err), err)
	}
	return p.respond(req, wire.StatusSuccess, &wire.ReadResult{
		Value: chunk,
		Block: &wire.BlockOption{Num: rp.Block.Num, Size: rp.Block.Size, More: more, Total: total},
	})
}

func (c *Client) handleWrite(p *peer, req *wire.Message) error {
	var wp wire.WritePayload
	if err := req.DecodePayload(&wp); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}
	o := c.currentObserver()

	if wp.Block == nil {
		if err := o.OnWrite(wp.Path, wp.Value); err != nil {
			return p.respondError(req, StatusFor(err), err)
		}
		err := p.respond(req, wire.StatusSuccess, nil)
		o.OnValueChanged(wp.Path)
		return err
	}

	if wp.Block.More && wp.Block.Size != 0 && uint32(len(wp.Value)) != wp.Block.Size {
		err := fmt.Errorf("%w: block %d carries %d bytes, size %d", blockwise.ErrInvalidBlock,
			wp.Block.Num, len(wp.Value), wp.Block.Size)
		return p.respondError(req, wire.StatusBadRequest, err)
	}
	b := blockwise.Block{
		ResourceID: wp.Path,
		Index:      wp.Block.Num,
		Data:       wp.Value,
		TotalSize:  wp.Block.Total,
		Last:       !wp.Block.More,
	}
	if err := o.OnBlockReceived(b); err != nil {
		return p.respondError(req, StatusFor(err), err)
	}
	if !b.Last {
		return p.respond(req, wire.StatusContinue, nil)
	}
	err := p.respond(req, wire.StatusSuccess, nil)
	o.OnValueChanged(wp.Path)
	return err
}

func (c *Client) handleExecute(p *peer, req *wire.Message) error {
	var ep wire.ExecutePayload
	if err := req.DecodePayload(&ep); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}
	if err := c.currentObserver().OnExecute(ep.Path, ep.Args); err != nil {
		return p.respondError(req, StatusFor(err), err)
	}
	return p.respond(req, wire.StatusSuccess, nil)
}

func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return err
}

var _ session.Registrar = (*Client)(nil)
