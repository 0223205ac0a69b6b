package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mash-protocol/m2m-client/pkg/resource"
)

// Test object resources.
const (
	TestObject = "Test"

	// StaticValue is the value of the static resource S.
	StaticValue = "Static value"
)

var (
	// DynamicPath is the reported, block-capable resource.
	DynamicPath = resource.Path{Object: TestObject, Instance: 0, Resource: "D"}

	// StaticPath is the read-only string resource.
	StaticPath = resource.Path{Object: TestObject, Instance: 0, Resource: "S"}
)

// addTestObject adds Test/0 with D set to initial.
func addTestObject(r *resource.Registry, initial int64, logger *slog.Logger) error {
	err := r.Add(resource.Definition{
		Path:       DynamicPath,
		Type:       "ResourceTest",
		Kind:       resource.KindOpaque,
		Dynamic:    true,
		Operations: resource.OpGetPutPostDelAllowed,
		Value:      []byte(strconv.FormatInt(initial, 10)),
		BlockWise:  true,
		Execute: func(path resource.Path, args []byte) error {
			logger.Info("resource executed",
				"object", path.Object, "instance", path.Instance, "resource", path.Resource,
				"payload", string(args))
			return nil
		},
	})
	if err != nil {
		return err
	}
	return r.Add(resource.Definition{
		Path:       StaticPath,
		Type:       "ResourceTest",
		Kind:       resource.KindString,
		Operations: resource.OpGetAllowed,
		Value:      []byte(StaticValue),
	})
}

// CounterReporter publishes an increasing counter to one resource.
type CounterReporter struct {
	store  resource.Store
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	next     int64
	onReport func(next int64)
}

// NewCounterReporter creates a reporter that writes next, next+1, ... to
// path.
func NewCounterReporter(store resource.Store, path string, next int64, logger *slog.Logger) *CounterReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CounterReporter{store: store, path: path, next: next, logger: logger}
}

// OnReport sets a callback invoked after each successful report with the
// value the next report will publish.
func (r *CounterReporter) OnReport(fn func(next int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReport = fn
}

// Report writes the current counter and advances it.
func (r *CounterReporter) Report(ctx context.Context) error {
	r.mu.Lock()
	value := r.next
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.SetValue(r.path, []byte(strconv.FormatInt(value, 10))); err != nil {
		return fmt.Errorf("report %s: %w", r.path, err)
	}
	r.logger.Info("resource value", "path", r.path, "value", value)

	r.mu.Lock()
	r.next = value + 1
	fn := r.onReport
	r.mu.Unlock()

	if fn != nil {
		fn(value + 1)
	}
	return nil
}

// Next returns the value the next report will publish.
func (r *CounterReporter) Next() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}
