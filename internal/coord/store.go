// Package coord publishes advisory coordination markers to a shared path store.
//
// Markers are plain writes with no acquire/release semantics. A deployment agent
// scheduled independently of the controller is expected to observe a marker and
// overwrite it; until it does, the controller and the agent may both act on the
// same container. Callers that need mutual exclusion must provide it themselves.
package coord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	// SwitchingProfile is the marker value written before a profile reassignment.
	SwitchingProfile = "switching profile"

	provisionRoot = "/fabric/registry/containers/provision"
)

// Store errors.
var (
	ErrInvalidPath = errors.New("coord: invalid path")
	ErrNotFound    = errors.New("coord: path not found")
)

// Store is the write side of the coordination store used by the controller.
type Store interface {
	Write(ctx context.Context, path string, value string) error
}

// ProvisionResultPath is where a container's agent publishes its provision result.
func ProvisionResultPath(containerID string) string {
	return fmt.Sprintf("%s/%s/result", provisionRoot, strings.TrimSpace(containerID))
}

// ProvisionStatusPath is where a container's agent publishes its provision status.
func ProvisionStatusPath(containerID string) string {
	return fmt.Sprintf("%s/%s/status", provisionRoot, strings.TrimSpace(containerID))
}

// Entry is one stored value plus the number of writes it has received.
type Entry struct {
	Value    string
	Revision uint64
}

// MemoryStore is an in-process Store with read access for agents and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Write upserts value at path and bumps its revision.
func (s *MemoryStore) Write(ctx context.Context, path string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := cleanPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.entries[key]
	s.entries[key] = Entry{Value: value, Revision: prev.Revision + 1}
	return nil
}

// Get returns the entry at path.
func (s *MemoryStore) Get(ctx context.Context, path string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	key, err := cleanPath(path)
	if err != nil {
		return Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return entry, nil
}

// List returns stored paths under prefix in sorted order.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func cleanPath(path string) (string, error) {
	key := strings.TrimSpace(path)
	if key == "" || !strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if len(key) > 1 {
		key = strings.TrimRight(key, "/")
	}
	if strings.Contains(key, "//") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return key, nil
}
