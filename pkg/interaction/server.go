package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mash-protocol/m2m-client/pkg/blockwise"
	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/persistence"
	"github.com/mash-protocol/m2m-client/pkg/transport"
	"github.com/mash-protocol/m2m-client/pkg/wire"
)

// Server errors.
var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrEndpointOffline = errors.New("endpoint not connected")
)

// locationPrefix prefixes every assigned registration location.
const locationPrefix = "/rd/"

// ServerConfig configures a Server.
type ServerConfig struct {
	// State, if set, persists the registration directory.
	State *persistence.ServerStateStore

	// RequestTimeout bounds requests sent to endpoints
	// (default: DefaultRequestTimeout).
	RequestTimeout time.Duration

	// OnRegistration is called after an endpoint registers, updates or
	// deregisters. removed is true on deregistration. Callbacks run on the
	// endpoint's read goroutine; requests to that endpoint must be issued
	// from another goroutine.
	OnRegistration func(rec persistence.RegistrationRecord, removed bool)

	// OnNotify is called for every value reported by an endpoint.
	OnNotify func(endpoint, path string, value []byte)

	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// Server is the management side of the protocol. Wire HandleMessage and
// HandleDisconnect into a transport.Server.
type Server struct {
	state    *persistence.ServerStateStore
	timeout  time.Duration
	protoLog log.Logger
	logger   *slog.Logger

	onRegistration func(persistence.RegistrationRecord, bool)
	onNotify       func(string, string, []byte)

	mu      sync.RWMutex
	byName  map[string]*registration
	peers   map[*transport.Conn]*peer
	nextLoc int
}

type registration struct {
	record persistence.RegistrationRecord
	conn   *transport.Conn
	values map[string][]byte
}

// NewServer creates a server, restoring saved registrations. Restored
// registrations stay offline until the endpoint registers again.
func NewServer(cfg ServerConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		state:          cfg.State,
		timeout:        cfg.RequestTimeout,
		protoLog:       cfg.ProtocolLogger,
		logger:         logger,
		onRegistration: cfg.OnRegistration,
		onNotify:       cfg.OnNotify,
		byName:         make(map[string]*registration),
		peers:          make(map[*transport.Conn]*peer),
	}
	if err := s.restore(); err != nil {
		return nil, err
	}
	return s, nil
}

// Registrations returns the registration directory sorted by endpoint name.
func (s *Server) Registrations() []persistence.RegistrationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.RegistrationRecord, 0, len(s.byName))
	for _, r := range s.byName {
		out = append(out, r.record)
	}
	slices.SortFunc(out, func(a, b persistence.RegistrationRecord) int {
		return strings.Compare(a.Endpoint, b.Endpoint)
	})
	return out
}

// Online reports whether endpoint is registered over an open connection.
func (s *Server) Online(endpoint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byName[endpoint]
	return ok && r.conn != nil
}

// LastValue returns the last value endpoint notified for path.
func (s *Server) LastValue(endpoint, path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byName[endpoint]
	if !ok {
		return nil, false
	}
	v, ok := r.values[path]
	return v, ok
}

// HandleMessage processes one frame from conn.
func (s *Server) HandleMessage(conn *transport.Conn, data []byte) {
	p := s.peerFor(conn)

	msg, err := wire.DecodeMessage(data)
	if err != nil {
		s.logger.Warn("message dropped", "conn_id", conn.ID(), "error", err)
		return
	}
	if msg.Response {
		if err := p.deliver(msg); err != nil {
			s.logger.Debug("response dropped", "msg_id", msg.MessageID, "error", err)
		}
		return
	}
	p.logMessage(msg, log.DirectionIn, nil)

	switch msg.Operation {
	case wire.OpRegister:
		err = s.handleRegister(conn, p, msg)
	case wire.OpUpdate:
		err = s.handleUpdate(conn, p, msg)
	case wire.OpDeregister:
		err = s.handleDeregister(conn, p, msg)
	case wire.OpNotify:
		err = s.handleNotify(conn, p, msg)
	default:
		err = p.respondError(msg, wire.StatusBadRequest, fmt.Errorf("%s is not served by the server", msg.Operation))
	}
	if err != nil {
		s.logger.Warn("response not sent", "conn_id", conn.ID(), "operation", msg.Operation, "error", err)
	}
}

// HandleDisconnect marks the registrations of conn offline and fails its
// outstanding requests.
func (s *Server) HandleDisconnect(conn *transport.Conn) {
	s.mu.Lock()
	p := s.peers[conn]
	delete(s.peers, conn)
	for _, r := range s.byName {
		if r.conn == conn {
			r.conn = nil
			s.logger.Info("endpoint offline", "endpoint", r.record.Endpoint, "location", r.record.Location)
		}
	}
	s.mu.Unlock()
	if p != nil {
		p.close()
	}
}

func (s *Server) peerFor(conn *transport.Conn) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[conn]
	if !ok {
		p = newPeer(conn, conn.ID(), "", s.protoLog)
		s.peers[conn] = p
	}
	return p
}

func (s *Server) handleRegister(conn *transport.Conn, p *peer, req *wire.Message) error {
	var rp wire.RegisterPayload
	if err := req.DecodePayload(&rp); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}
	if rp.Endpoint == "" {
		return p.respondError(req, wire.StatusBadRequest, errors.New("endpoint name is required"))
	}

	s.mu.Lock()
	if old, ok := s.byName[rp.Endpoint]; ok && old.conn != nil && old.conn != conn {
		s.mu.Unlock()
		return p.respondError(req, wire.StatusConflict, fmt.Errorf("%s is registered on another connection", rp.Endpoint))
	}
	s.nextLoc++
	now := time.Now()
	r := &registration{
		record: persistence.RegistrationRecord{
			Location:     locationPrefix + strconv.Itoa(s.nextLoc),
			Endpoint:     rp.Endpoint,
			Domain:       rp.Domain,
			Lifetime:     rp.Lifetime,
			Objects:      rp.Objects,
			RegisteredAt: now,
		},
		conn:   conn,
		values: make(map[string][]byte),
	}
	s.byName[rp.Endpoint] = r
	rec := r.record
	s.mu.Unlock()

	s.logger.Info("endpoint registered", "endpoint", rec.Endpoint, "location", rec.Location,
		"lifetime", rec.Lifetime, "objects", rec.Objects, "remote", conn.RemoteAddr().String())
	s.save()

	err := p.respond(req, wire.StatusSuccess, &wire.RegisterResult{Location: rec.Location})
	s.registrationChanged(rec, false)
	return err
}

func (s *Server) handleUpdate(conn *transport.Conn, p *peer, req *wire.Message) error {
	var up wire.UpdatePayload
	if err := req.DecodePayload(&up); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}

	s.mu.Lock()
	r := s.byLocationLocked(up.Location)
	if r == nil || r.conn != conn {
		s.mu.Unlock()
		return p.respondError(req, wire.StatusNotFound, fmt.Errorf("no registration at %q", up.Location))
	}
	if up.Lifetime != 0 {
		r.record.Lifetime = up.Lifetime
	}
	r.record.LastUpdateAt = time.Now()
	rec := r.record
	s.mu.Unlock()

	s.logger.Info("registration updated", "endpoint", rec.Endpoint, "lifetime", rec.Lifetime)
	s.save()

	err := p.respond(req, wire.StatusSuccess, nil)
	s.registrationChanged(rec, false)
	return err
}

func (s *Server) handleDeregister(conn *transport.Conn, p *peer, req *wire.Message) error {
	var dp wire.DeregisterPayload
	if err := req.DecodePayload(&dp); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}

	s.mu.Lock()
	r := s.byLocationLocked(dp.Location)
	if r == nil || r.conn != conn {
		s.mu.Unlock()
		return p.respondError(req, wire.StatusNotFound, fmt.Errorf("no registration at %q", dp.Location))
	}
	delete(s.byName, r.record.Endpoint)
	rec := r.record
	s.mu.Unlock()

	s.logger.Info("endpoint deregistered", "endpoint", rec.Endpoint, "location", rec.Location)
	s.save()

	err := p.respond(req, wire.StatusSuccess, nil)
	s.registrationChanged(rec, true)
	return err
}

func (s *Server) handleNotify(conn *transport.Conn, p *peer, req *wire.Message) error {
	var np wire.NotifyPayload
	if err := req.DecodePayload(&np); err != nil {
		return p.respondError(req, wire.StatusBadRequest, err)
	}

	s.mu.Lock()
	var name string
	for _, r := range s.byName {
		if r.conn == conn {
			name = r.record.Endpoint
			r.values[np.Path] = np.Value
			break
		}
	}
	s.mu.Unlock()
	if name == "" {
		return p.respondError(req, wire.StatusNotFound, errors.New("notify from unregistered connection"))
	}

	s.logger.Debug("value notified", "endpoint", name, "path", np.Path, "value", string(np.Value))
	err := p.respond(req, wire.StatusSuccess, nil)
	if s.onNotify != nil {
		s.onNotify(name, np.Path, np.Value)
	}
	return err
}

func (s *Server) byLocationLocked(location string) *registration {
	for _, r := range s.byName {
		if r.record.Location == location {
			return r
		}
	}
	return nil
}

func (s *Server) registrationChanged(rec persistence.RegistrationRecord, removed bool) {
	if s.onRegistration != nil {
		s.onRegistration(rec, removed)
	}
}

// Read reads the value at path from endpoint in one response.
func (s *Server) Read(ctx context.Context, endpoint, path string) ([]byte, error) {
	resp, err := s.call(ctx, endpoint, wire.OpRead, &wire.ReadPayload{Path: path})
	if err != nil {
		return nil, err
	}
	var res wire.ReadResult
	if err := resp.DecodePayload(&res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	return res.Value, nil
}

// ReadBlocks reads the value at path block by block.
func (s *Server) ReadBlocks(ctx context.Context, endpoint, path string, blockSize int) ([]byte, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", blockwise.ErrInvalidBlock, blockSize)
	}

	var value []byte
	for num := uint32(0); ; num++ {
		resp, err := s.call(ctx, endpoint, wire.OpRead, &wire.ReadPayload{
			Path:  path,
			Block: &wire.BlockOption{Num: num, Size: uint32(blockSize)},
		})
		if err != nil {
			return nil, err
		}
		var res wire.ReadResult
		if err := resp.DecodePayload(&res); err != nil || res.Block == nil {
			return nil, fmt.Errorf("%w: block %d of %s", ErrUnexpectedReply, num, path)
		}
		if value == nil {
			value = make([]byte, 0, res.Block.Total)
		}
		value = append(value, res.Value...)
		if !res.Block.More {
			if uint32(len(value)) != res.Block.Total {
				return nil, fmt.Errorf("%w: read %d of %d bytes", blockwise.ErrBlockOverrun, len(value), res.Block.Total)
			}
			return value, nil
		}
	}
}

// Write writes value to path on endpoint in one request.
func (s *Server) Write(ctx context.Context, endpoint, path string, value []byte) error {
	_, err := s.call(ctx, endpoint, wire.OpWrite, &wire.WritePayload{Path: path, Value: value})
	return err
}

// WriteBlocks writes value to path on endpoint in blocks of blockSize.
func (s *Server) WriteBlocks(ctx context.Context, endpoint, path string, value []byte, blockSize int) error {
	blocks, err := blockwise.Split(path, value, blockSize)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		resp, err := s.call(ctx, endpoint, wire.OpWrite, &wire.WritePayload{
			Path:  path,
			Value: b.Data,
			Block: &wire.BlockOption{Num: b.Index, Size: uint32(blockSize), More: !b.Last, Total: b.TotalSize},
		})
		if err != nil {
			return fmt.Errorf("block %d: %w", b.Index, err)
		}
		if want := blockStatus(b.Last); resp.Status != want {
			return fmt.Errorf("%w: block %d answered %s, want %s", ErrUnexpectedReply, b.Index, resp.Status, want)
		}
	}
	return nil
}

func blockStatus(last bool) wire.Status {
	if last {
		return wire.StatusSuccess
	}
	return wire.StatusContinue
}

// Execute runs the resource at path on endpoint.
func (s *Server) Execute(ctx context.Context, endpoint, path string, args []byte) error {
	_, err := s.call(ctx, endpoint, wire.OpExecute, &wire.ExecutePayload{Path: path, Args: args})
	return err
}

// call sends a request to endpoint and returns its successful response.
func (s *Server) call(ctx context.Context, endpoint string, op wire.Operation, payload any) (*wire.Message, error) {
	s.mu.RLock()
	r, ok := s.byName[endpoint]
	var p *peer
	if ok && r.conn != nil {
		p = s.peers[r.conn]
	}
	s.mu.RUnlock()

	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	case p == nil:
		return nil, fmt.Errorf("%w: %s", ErrEndpointOffline, endpoint)
	}

	resp, err := p.request(ctx, op, payload, s.timeout)
	if err != nil {
		return nil, err
	}
	if !resp.Status.IsSuccess() {
		return nil, statusError(resp)
	}
	return resp, nil
}

func (s *Server) restore() error {
	if s.state == nil {
		return nil
	}
	saved, err := s.state.Load()
	if err != nil {
		return fmt.Errorf("load server state: %w", err)
	}
	if saved == nil {
		return nil
	}
	for _, rec := range saved.Registrations {
		s.byName[rec.Endpoint] = &registration{record: rec, values: make(map[string][]byte)}
		if n, err := strconv.Atoi(strings.TrimPrefix(rec.Location, locationPrefix)); err == nil && n > s.nextLoc {
			s.nextLoc = n
		}
	}
	s.logger.Info("registrations restored", "count", len(saved.Registrations))
	return nil
}

func (s *Server) save() {
	if s.state == nil {
		return
	}
	state := &persistence.ServerState{Registrations: s.Registrations()}
	if err := s.state.Save(state); err != nil {
		s.logger.Warn("server state not saved", "error", err)
	}
}
