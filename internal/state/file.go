package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/imamik/edgefip/internal/floatingip"
)

// FileStore keeps all interfaces in a single YAML file keyed by interface id.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context, id string) (*floatingip.RuntimeState, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return nil, err
	}
	s, ok := all[id]
	if !ok {
		return &floatingip.RuntimeState{}, nil
	}
	return &s, nil
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, id string, s *floatingip.RuntimeState) error {
	if err := validateID(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	if isEmpty(s) {
		delete(all, id)
	} else {
		all[id] = *s
	}
	return f.write(all)
}

func (f *FileStore) read() (map[string]floatingip.RuntimeState, error) {
	all := make(map[string]floatingip.RuntimeState)
	// #nosec G304
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", f.path, err)
	}
	if all == nil {
		all = make(map[string]floatingip.RuntimeState)
	}
	return all, nil
}

// write replaces the file atomically.
func (f *FileStore) write(all map[string]floatingip.RuntimeState) error {
	data, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".edgefip-state-*")
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
