// Package cache holds the read-side caches kept next to the ledger.
//
// Entries are versioned per key: Invalidate bumps the key's generation, and a
// value computed before the bump is refused by SetIfGeneration. A slow read
// that started before a commit therefore cannot put a stale value back after
// the commit invalidated the key.
package cache

import (
	"log/slog"
	"time"
)

// Cache is a keyed cache with per-key invalidation.
type Cache[K comparable, T any] interface {
	Get(key K) (T, bool)
	Set(key K, data T)

	// Generation returns the key's current generation for SetIfGeneration.
	Generation(key K) uint64
	// SetIfGeneration stores data only if key was not invalidated since gen
	// was read.
	SetIfGeneration(key K, gen uint64, data T) bool
	Invalidate(key K)

	Size() int
}

// Cleaner is implemented by caches that drop expired entries on demand.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic cleanup of registered caches.
type Manager struct {
	caches      []Cleaner
	logger      *slog.Logger
	started     bool
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		caches:      make([]Cleaner, 0),
		logger:      logger,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches. Stop must be
// called to end it.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanAll(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// CleanAll runs one cleanup pass and returns the number of removed entries.
func (m *Manager) CleanAll() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup goroutine started by StartCleanup.
func (m *Manager) Stop() {
	select {
	case <-m.stopCleanup:
		return
	default:
	}
	close(m.stopCleanup)
	if m.started {
		<-m.cleanupDone
	}
}
