package images

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the flat directory holding this run's figures. Names are reserved
// before any bytes are fetched so two concurrent downloads can never claim
// the same file. Files left by earlier runs are not consulted.
type Store struct {
	dir string

	mu       sync.Mutex
	reserved map[string]bool
	written  int
}

// NewStore creates a store rooted at dir. The directory is created on the
// first write, so a run that downloads nothing leaves the filesystem alone.
func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		reserved: make(map[string]bool),
	}
}

// Dir returns the store's directory
func (s *Store) Dir() string {
	return s.dir
}

// Reserve claims name for this run. It returns false if the name was
// already claimed.
func (s *Store) Reserve(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reserved[name] {
		return false
	}
	s.reserved[name] = true
	return true
}

// Release gives up a reservation whose file was never written
func (s *Store) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, name)
}

// Write stores data under a reserved name. The file appears atomically.
func (s *Store) Write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}

	s.mu.Lock()
	s.written++
	s.mu.Unlock()
	return nil
}

// Written is the number of files stored so far
func (s *Store) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
