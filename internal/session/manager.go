package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"winery/internal/cache"
	"winery/internal/log"
	"winery/internal/winery"
)

// Manager hands out one State per session id and keeps recently used states
// in memory until they sit idle for longer than the idle timeout.
type Manager struct {
	store       Store
	auth        winery.AuthAPI
	logger      *log.Logger
	now         func() time.Time
	idleTimeout time.Duration
	states      *cache.LRUCache[*State]
	loader      *cache.Loader[*State]
	listeners   []func(id string) Listener
}

type ManagerOption func(*Manager)

// WithClock replaces time.Now for token expiry checks and idle tracking.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithListener attaches a listener to every state before its first publish.
func WithListener(fn func(id string) Listener) ManagerOption {
	return func(m *Manager) { m.listeners = append(m.listeners, fn) }
}

const maxLiveSessions = 10000

func NewManager(store Store, auth winery.AuthAPI, idleTimeout time.Duration, logger *log.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	m := &Manager{
		store:       store,
		auth:        auth,
		logger:      logger.WithComponent(log.ComponentSession),
		now:         time.Now,
		idleTimeout: idleTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.states = cache.NewLRUCache[*State](maxLiveSessions, idleTimeout,
		cache.WithSlidingExpiry[*State](),
		cache.WithClock[*State](m.now),
	)
	m.loader = cache.NewLoader[*State](m.states, m.load)
	return m
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// Open returns the state for id: persisted values are loaded first, the token
// is validated next, and only then is the initial identity published.
func (m *Manager) Open(ctx context.Context, id string) (*State, error) {
	if id == "" {
		return nil, fmt.Errorf("open session: empty id")
	}
	return m.loader.Get(ctx, id)
}

func (m *Manager) load(ctx context.Context, id string) (*State, error) {
	values, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s := newState(id, m.store, m.auth, m.logger, m.now)
	s.restore(values)

	s.mu.Lock()
	if !s.validLocked() {
		// Nobody has seen this state yet, so there is nothing to notify.
		s.clearLocked(ctx)
	}
	for _, fn := range m.listeners {
		s.listeners[s.nextID] = fn(id)
		s.nextID++
	}
	s.mu.Unlock()

	s.publish()
	return s, nil
}

// CleanExpired evicts idle states from memory. It satisfies cache.Cleaner so the
// cache manager can drive it.
func (m *Manager) CleanExpired() int {
	return m.states.CleanExpired()
}

// Purge removes persisted sessions idle for longer than the idle timeout.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	n, err := m.store.Purge(ctx, m.now().Add(-m.idleTimeout))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "Purged idle sessions", "count", n)
	}
	return n, nil
}

// Live is the number of states held in memory.
func (m *Manager) Live() int {
	return m.states.Size()
}
