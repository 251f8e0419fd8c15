// ABOUTME: Registry of named Deduplicator instances plus a shared default.
// ABOUTME: Namespaces keep unrelated subsystems from colliding on key strings.

package dedupe

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultName is the stats-map name of the default instance.
const DefaultName = "default"

// Manager owns a default Deduplicator and a set of named ones. Ownership is
// exclusive: only the Manager creates and closes its instances, and no
// instance is registered under two names.
type Manager struct {
	mu     sync.RWMutex
	def    *Deduplicator
	named  map[string]*Deduplicator
	opts   Options
	logger *slog.Logger
	closed bool
}

// NewManager creates a Manager whose default instance (and any named
// instance created without explicit options) uses opts.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		def:    New(opts),
		named:  make(map[string]*Deduplicator),
		opts:   opts,
		logger: opts.Logger,
	}
}

// Get returns the default instance for an empty name, or the named instance,
// lazily creating it with the Manager's options.
func (m *Manager) Get(name string) *Deduplicator {
	return m.GetWith(name, m.opts)
}

// GetWith is Get with explicit options for first-time creation. Options are
// first-writer-wins: if the named instance already exists, opts are ignored.
func (m *Manager) GetWith(name string, opts Options) *Deduplicator {
	if name == "" {
		return m.def
	}

	m.mu.RLock()
	d, ok := m.named[name]
	m.mu.RUnlock()
	if ok {
		return d
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.named[name]; ok {
		return d
	}
	d = New(opts)
	m.named[name] = d
	m.logger.Debug("created deduplicator", "name", name)
	return d
}

// Execute runs fn through the named instance (default for empty name).
func (m *Manager) Execute(ctx context.Context, name, key string, fn Func) (any, error) {
	return m.Get(name).Execute(ctx, key, fn)
}

// ClearCache clears one key from the named instance, or its whole cache when
// key is empty.
func (m *Manager) ClearCache(name, key string) {
	d := m.Get(name)
	if key == "" {
		d.ClearAllCache()
		return
	}
	d.ClearCache(key)
}

// AllStats returns a snapshot for the default instance and every named one.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.named)+1)
	stats[DefaultName] = m.def.Stats()
	for name, d := range m.named {
		stats[name] = d.Stats()
	}
	return stats
}

// Close closes the default and every named instance and clears the registry.
// Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.def.Close()
	for _, d := range m.named {
		d.Close()
	}
	m.named = make(map[string]*Deduplicator)
	m.closed = true
}
