package persistence

import "time"

// EndpointState is the runtime state of an endpoint.
type EndpointState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Endpoint is the endpoint name the state belongs to.
	Endpoint string `json:"endpoint"`

	// Location is the registration location assigned by the server.
	Location string `json:"location,omitempty"`

	// RegisteredAt is when the last registration succeeded.
	RegisteredAt time.Time `json:"registered_at,omitempty"`

	// Counter is the next value the reporting task will publish.
	Counter int64 `json:"counter"`

	// Values holds resource values written by the server, by path. Values
	// are opaque bytes and encode as base64.
	Values map[string][]byte `json:"values,omitempty"`
}

func (s *EndpointState) stamp(now time.Time) {
	s.Version = StateVersion
	s.SavedAt = now
}

func (s *EndpointState) version() int { return s.Version }

// EndpointStateStore persists EndpointState to a JSON file.
type EndpointStateStore struct {
	fs fileStore[EndpointState, *EndpointState]
}

// NewEndpointStateStore creates a store for the file at path.
func NewEndpointStateStore(path string) *EndpointStateStore {
	return &EndpointStateStore{fs: fileStore[EndpointState, *EndpointState]{path: path}}
}

// Path returns the state file path.
func (s *EndpointStateStore) Path() string { return s.fs.path }

// Save persists the state.
func (s *EndpointStateStore) Save(state *EndpointState) error {
	return s.fs.save(state)
}

// Load reads the state. It returns nil, nil if nothing was saved yet.
func (s *EndpointStateStore) Load() (*EndpointState, error) {
	return s.fs.load()
}

// Clear removes the state file.
func (s *EndpointStateStore) Clear() error {
	return s.fs.clear()
}
