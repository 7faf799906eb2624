// ABOUTME: In-memory Driver backed by a map
// ABOUTME: Serves the ephemeral scope and the last-resort fallback

package storage

import (
	"context"
	"sync"
)

// MemoryDriver implements Driver using an in-memory map.
type MemoryDriver struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{values: make(map[string]string)}
}

// Get implements Driver.
func (m *MemoryDriver) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.values == nil {
		return "", false, ErrUnavailable
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Driver.
func (m *MemoryDriver) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values == nil {
		return ErrUnavailable
	}
	m.values[key] = value
	return nil
}

// Delete implements Driver.
func (m *MemoryDriver) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.values == nil {
		return ErrUnavailable
	}
	delete(m.values, key)
	return nil
}

// Close implements Driver. A closed driver reports ErrUnavailable.
func (m *MemoryDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = nil
	return nil
}
