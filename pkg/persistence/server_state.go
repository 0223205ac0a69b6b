package persistence

import "time"

// ServerState is the runtime state of a management server.
type ServerState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Registrations lists the endpoints currently registered.
	Registrations []RegistrationRecord `json:"registrations,omitempty"`
}

// RegistrationRecord describes one registered endpoint.
type RegistrationRecord struct {
	Location     string    `json:"location"`
	Endpoint     string    `json:"endpoint"`
	Domain       string    `json:"domain,omitempty"`
	Lifetime     uint32    `json:"lifetime"`
	Objects      []string  `json:"objects,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastUpdateAt time.Time `json:"last_update_at,omitempty"`
}

func (s *ServerState) stamp(now time.Time) {
	s.Version = StateVersion
	s.SavedAt = now
}

func (s *ServerState) version() int { return s.Version }

// ServerStateStore persists ServerState to a JSON file.
type ServerStateStore struct {
	fs fileStore[ServerState, *ServerState]
}

// NewServerStateStore creates a store for the file at path.
func NewServerStateStore(path string) *ServerStateStore {
	return &ServerStateStore{fs: fileStore[ServerState, *ServerState]{path: path}}
}

// Save persists the state.
func (s *ServerStateStore) Save(state *ServerState) error {
	return s.fs.save(state)
}

// Load reads the state. It returns nil, nil if nothing was saved yet.
func (s *ServerStateStore) Load() (*ServerState, error) {
	return s.fs.load()
}

// Clear removes the state file.
func (s *ServerStateStore) Clear() error {
	return s.fs.clear()
}
