package resource

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Store is the value store the session core depends on.
type Store interface {
	GetValue(path string) ([]byte, error)
	SetValue(path string, value []byte) error
	Execute(path string, args []byte) error
}

// Origin tells change hooks who updated a value.
type Origin uint8

const (
	// OriginLocal is an update made by the endpoint itself.
	OriginLocal Origin = iota
	// OriginServer is a write from the management server.
	OriginServer
)

// String returns the origin name.
func (o Origin) String() string {
	if o == OriginServer {
		return "SERVER"
	}
	return "LOCAL"
}

// ChangeFunc is called after a value changed.
type ChangeFunc func(path Path, origin Origin)

type entry struct {
	def   Definition
	value []byte
}

// Registry is an in-memory Store. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	resources map[Path]*entry
	hooks     []ChangeFunc
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		resources: make(map[Path]*entry),
		logger:    logger,
	}
}

// Add registers a resource.
func (r *Registry) Add(def Definition) error {
	if err := def.Kind.Validate(def.Value); len(def.Value) > 0 && err != nil {
		return fmt.Errorf("%s: %w", def.Path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[def.Path]; ok {
		return fmt.Errorf("%w: %s", ErrExists, def.Path)
	}
	r.resources[def.Path] = &entry{def: def, value: clone(def.Value)}
	return nil
}

// OnValueChanged adds a hook called after every value change.
func (r *Registry) OnValueChanged(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Definition returns the definition of the resource at path.
func (r *Registry) Definition(path Path) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.resources[path]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Get returns a copy of the value at path.
func (r *Registry) Get(path Path) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.resources[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return clone(e.value), nil
}

// Set updates a dynamic value locally.
func (r *Registry) Set(path Path, value []byte) error {
	return r.update(path, value, OriginLocal)
}

// Write applies a server write. The resource must allow OpPut.
func (r *Registry) Write(path Path, value []byte) error {
	return r.update(path, value, OriginServer)
}

// Read returns the value for a server read. The resource must allow OpGet.
func (r *Registry) Read(path Path) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.resources[path]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !e.def.Operations.Has(OpGet) {
		return nil, fmt.Errorf("%w: read %s", ErrNotAllowed, path)
	}
	return r.Get(path)
}

// Run executes the resource at path. The resource must allow OpPost.
func (r *Registry) Run(path Path, args []byte) error {
	r.mu.RLock()
	e, ok := r.resources[path]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !e.def.Operations.Has(OpPost) {
		return fmt.Errorf("%w: execute %s", ErrNotAllowed, path)
	}
	if e.def.Execute == nil {
		return fmt.Errorf("%w: %s", ErrNotExecutable, path)
	}
	return e.def.Execute(path, args)
}

func (r *Registry) update(path Path, value []byte, origin Origin) error {
	r.mu.Lock()
	e, ok := r.resources[path]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !e.def.Dynamic {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStatic, path)
	}
	if origin == OriginServer && !e.def.Operations.Has(OpPut) {
		r.mu.Unlock()
		return fmt.Errorf("%w: write %s", ErrNotAllowed, path)
	}
	if err := e.def.Kind.Validate(value); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", path, err)
	}
	e.value = clone(value)
	hooks := append([]ChangeFunc(nil), r.hooks...)
	r.mu.Unlock()

	r.logger.Debug("resource updated", "path", path, "origin", origin, "size", len(value))
	for _, fn := range hooks {
		fn(path, origin)
	}
	return nil
}

// Paths returns all resource paths in sorted order.
func (r *Registry) Paths() []Path {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]Path, 0, len(r.resources))
	for p := range r.resources {
		paths = append(paths, p)
	}
	sortPaths(paths)
	return paths
}

// Instances returns the object instances to announce at registration,
// like "3/0" and "Test/0", in sorted order.
func (r *Registry) Instances() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for p := range r.resources {
		ip := p.InstancePath()
		if !seen[ip] {
			seen[ip] = true
			out = append(out, ip)
		}
	}
	sort.Strings(out)
	return out
}

// GetValue implements Store.
func (r *Registry) GetValue(path string) ([]byte, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return r.Get(p)
}

// SetValue implements Store.
func (r *Registry) SetValue(path string, value []byte) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	return r.Set(p, value)
}

// Execute implements Store.
func (r *Registry) Execute(path string, args []byte) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	return r.Run(p, args)
}

func sortPaths(paths []Path) {
	sort.Slice(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if a.Object != b.Object {
			return a.Object < b.Object
		}
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		return a.Resource < b.Resource
	})
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*Registry)(nil)
