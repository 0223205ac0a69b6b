package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/m2m-client/pkg/blockwise"
	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/persistence"
	"github.com/mash-protocol/m2m-client/pkg/resource"
	"github.com/mash-protocol/m2m-client/pkg/session"
)

// Config configures a Client.
type Config struct {
	Identity  session.Identity
	Security  session.Security
	Registrar session.Registrar

	// Timeout bounds each registration operation. Zero disables it.
	Timeout time.Duration

	// MaxBlockTransfer caps the declared size of inbound block transfers.
	MaxBlockTransfer uint32

	// State, if set, restores and saves the counter, location and
	// server-written values.
	State *persistence.EndpointStateStore

	// SessionID defaults to a random UUID.
	SessionID string

	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// Client is a device endpoint. It implements Observer.
type Client struct {
	identity  session.Identity
	sessionID string

	sess       *session.Session
	registry   *resource.Registry
	assembler  *blockwise.Assembler
	fragmenter *blockwise.Fragmenter
	reporter   *CounterReporter

	stateStore *persistence.EndpointStateStore
	stateMu    sync.Mutex
	state      persistence.EndpointState

	mu            sync.RWMutex
	onLocalChange func(path string, value []byte)

	logger *slog.Logger
}

// New creates a client with the device and Test objects.
func New(cfg Config) (*Client, error) {
	if cfg.Identity.Name == "" {
		return nil, errors.New("endpoint name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	logger = logger.With("endpoint", cfg.Identity.Name)

	c := &Client{
		identity:   cfg.Identity,
		sessionID:  cfg.SessionID,
		stateStore: cfg.State,
		logger:     logger,
		state: persistence.EndpointState{
			Endpoint: cfg.Identity.Name,
			Counter:  1,
		},
	}
	if err := c.restore(); err != nil {
		return nil, err
	}

	c.registry = resource.NewRegistry(logger)
	if err := resource.AddDevice(c.registry, cfg.Identity.Device); err != nil {
		return nil, err
	}
	if err := addTestObject(c.registry, c.state.Counter-1, logger); err != nil {
		return nil, err
	}
	for path, value := range c.state.Values {
		p, err := resource.ParsePath(path)
		if err != nil {
			continue
		}
		if err := c.registry.Set(p, value); err != nil {
			logger.Warn("saved value not restored", "path", path, "error", err)
		}
	}
	c.registry.OnValueChanged(c.valueChanged)

	c.sess = session.NewSession(session.Config{
		Registrar:      cfg.Registrar,
		Security:       cfg.Security,
		Timeout:        cfg.Timeout,
		SessionID:      cfg.SessionID,
		ProtocolLogger: cfg.ProtocolLogger,
		Logger:         logger,
	})
	c.assembler = blockwise.NewAssembler(blockwise.AssemblerConfig{
		OnComplete:     c.blockTransferComplete,
		MaxSize:        cfg.MaxBlockTransfer,
		SessionID:      cfg.SessionID,
		ProtocolLogger: cfg.ProtocolLogger,
		Logger:         logger,
	})
	c.fragmenter = blockwise.NewFragmenter(blockwise.FragmenterConfig{
		Source:         c.registry,
		SessionID:      cfg.SessionID,
		ProtocolLogger: cfg.ProtocolLogger,
		Logger:         logger,
	})
	c.reporter = NewCounterReporter(c.registry, DynamicPath.String(), c.state.Counter, logger)
	c.reporter.OnReport(func(next int64) {
		c.updateState(func(s *persistence.EndpointState) {
			s.Counter = next
			// A report supersedes the last server write of the same resource.
			delete(s.Values, DynamicPath.String())
		})
	})

	return c, nil
}

// Identity returns the endpoint identity.
func (c *Client) Identity() session.Identity { return c.identity }

// SessionID returns the ID tagging this client's log events.
func (c *Client) SessionID() string { return c.sessionID }

// Session returns the registration session.
func (c *Client) Session() *session.Session { return c.sess }

// Registry returns the resource registry.
func (c *Client) Registry() *resource.Registry { return c.registry }

// Reporter returns the counter reporter for the dynamic resource.
func (c *Client) Reporter() *CounterReporter { return c.reporter }

// Assembler returns the inbound block assembler.
func (c *Client) Assembler() *blockwise.Assembler { return c.assembler }

// Location returns the last registration location.
func (c *Client) Location() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.Location
}

// Objects returns the object instances announced at registration.
func (c *Client) Objects() session.ObjectSet {
	return session.ObjectSet(c.registry.Instances())
}

// Register starts registration with all objects.
func (c *Client) Register(ctx context.Context) error {
	return c.sess.InitiateRegistration(ctx, c.identity, c.Objects())
}

// OnLocalChange sets a callback for values changed by the endpoint itself,
// used to notify the server.
func (c *Client) OnLocalChange(fn func(path string, value []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLocalChange = fn
}

// OnRegistered implements Observer.
func (c *Client) OnRegistered() {
	c.sess.OnRegistered()
	c.updateState(func(s *persistence.EndpointState) { s.RegisteredAt = time.Now() })
}

// OnLocationAssigned implements LocationObserver.
func (c *Client) OnLocationAssigned(location string) {
	c.updateState(func(s *persistence.EndpointState) { s.Location = location })
}

// OnRenewed implements Observer.
func (c *Client) OnRenewed() {
	c.sess.OnRenewed()
}

// OnUnregistered implements Observer.
func (c *Client) OnUnregistered() {
	c.sess.OnUnregistered()
	c.updateState(func(s *persistence.EndpointState) { s.Location = "" })
}

// OnError implements Observer.
func (c *Client) OnError(kind session.ErrorKind) {
	c.logger.Error("error from protocol layer", "kind", kind)
	c.sess.OnError(kind)
}

// OnValueChanged implements Observer.
func (c *Client) OnValueChanged(path string) {
	c.logger.Info("value updated", "path", path)

	p, err := resource.ParsePath(path)
	if err != nil {
		return
	}
	def, ok := c.registry.Definition(p)
	if !ok || !def.Dynamic {
		return
	}
	value, err := c.registry.Get(p)
	if err != nil {
		return
	}
	c.updateState(func(s *persistence.EndpointState) {
		if s.Values == nil {
			s.Values = make(map[string][]byte)
		}
		s.Values[p.String()] = value
	})
}

// OnBlockReceived implements Observer.
func (c *Client) OnBlockReceived(b blockwise.Block) error {
	p, err := resource.ParsePath(b.ResourceID)
	if err != nil {
		return err
	}
	def, ok := c.registry.Definition(p)
	if !ok {
		return fmt.Errorf("%w: %s", resource.ErrNotFound, b.ResourceID)
	}
	if !def.BlockWise || !def.Operations.Has(resource.OpPut) {
		return fmt.Errorf("%w: block write %s", resource.ErrNotAllowed, b.ResourceID)
	}
	return c.assembler.OnBlockReceived(b)
}

// OnBlockRequested implements Observer.
func (c *Client) OnBlockRequested(resourceID string) ([]byte, uint32) {
	p, err := resource.ParsePath(resourceID)
	if err != nil {
		return nil, 0
	}
	if def, ok := c.registry.Definition(p); !ok || !def.Operations.Has(resource.OpGet) {
		return nil, 0
	}
	return c.fragmenter.OnBlockRequested(p.String())
}

// OnRead implements Observer.
func (c *Client) OnRead(path string) ([]byte, error) {
	p, err := resource.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return c.registry.Read(p)
}

// OnWrite implements Observer.
func (c *Client) OnWrite(path string, value []byte) error {
	p, err := resource.ParsePath(path)
	if err != nil {
		return err
	}
	return c.registry.Write(p, value)
}

// OnExecute implements Observer.
func (c *Client) OnExecute(path string, args []byte) error {
	p, err := resource.ParsePath(path)
	if err != nil {
		return err
	}
	return c.registry.Run(p, args)
}

// blockTransferComplete stores a reassembled value as a server write.
func (c *Client) blockTransferComplete(resourceID string, value []byte) {
	p, err := resource.ParsePath(resourceID)
	if err != nil {
		return
	}
	if err := c.registry.Write(p, value); err != nil {
		c.logger.Warn("block transfer not stored", "path", resourceID, "error", err)
		return
	}
	c.logger.Info("block transfer complete", "path", resourceID, "size", len(value))
}

func (c *Client) valueChanged(path resource.Path, origin resource.Origin) {
	if origin != resource.OriginLocal {
		return
	}
	c.mu.RLock()
	fn := c.onLocalChange
	c.mu.RUnlock()
	if fn == nil {
		return
	}
	value, err := c.registry.Get(path)
	if err != nil {
		return
	}
	fn(path.String(), value)
}

func (c *Client) restore() error {
	if c.stateStore == nil {
		return nil
	}
	saved, err := c.stateStore.Load()
	if err != nil {
		return fmt.Errorf("load endpoint state: %w", err)
	}
	if saved == nil {
		return nil
	}
	if saved.Endpoint != c.identity.Name {
		c.logger.Warn("ignoring state of another endpoint", "saved", saved.Endpoint, "path", c.stateStore.Path())
		return nil
	}
	if saved.Counter < 1 {
		saved.Counter = 1
	}
	c.state = *saved
	c.logger.Info("endpoint state restored", "counter", saved.Counter, "values", len(saved.Values))
	return nil
}

func (c *Client) updateState(fn func(*persistence.EndpointState)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	fn(&c.state)
	if c.stateStore == nil {
		return
	}
	snapshot := c.state
	if err := c.stateStore.Save(&snapshot); err != nil {
		c.logger.Warn("endpoint state not saved", "error", err)
	}
}

var (
	_ Observer         = (*Client)(nil)
	_ LocationObserver = (*Client)(nil)
)
