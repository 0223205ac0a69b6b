package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrVersion is returned when a state file has a newer format version.
var ErrVersion = errors.New("unsupported state file version")

// versioned is implemented by every persisted state type.
type versioned interface {
	stamp(now time.Time)
	version() int
}

// fileStore reads and writes one JSON state file.
type fileStore[T any, PT interface {
	*T
	versioned
}] struct {
	mu   sync.Mutex
	path string
}

func (s *fileStore[T, PT]) save(state PT) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	state.stamp(time.Now())

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write to a sibling file and rename so a crash never leaves a
	// truncated state file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// load returns nil, nil if the file does not exist.
func (s *fileStore[T, PT]) load() (PT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var none PT
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return none, nil
	}
	if err != nil {
		return none, err
	}

	state := PT(new(T))
	if err := json.Unmarshal(data, state); err != nil {
		return none, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.version() > StateVersion {
		return none, fmt.Errorf("%w: %d", ErrVersion, state.version())
	}
	return state, nil
}

func (s *fileStore[T, PT]) clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
