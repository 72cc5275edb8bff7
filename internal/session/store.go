package session

import (
	"context"
	"sync"
	"time"
)

// Persisted keys. Theme and language outlive a logout.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyTheme        = "theme"
	KeyLanguage     = "language"
)

// Store is the key-value persistence behind a browser session.
type Store interface {
	// Load returns every key stored for id. Unknown ids yield an empty map.
	Load(ctx context.Context, id string) (map[string]string, error)
	// Set upserts values for id.
	Set(ctx context.Context, id string, values map[string]string) error
	// Delete removes keys for id.
	Delete(ctx context.Context, id string, keys ...string) error
	// Purge drops sessions whose newest write happened before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type memoryValue struct {
	value     string
	updatedAt time.Time
}

// MemoryStore keeps sessions in process memory. State is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	sessions map[string]map[string]memoryValue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, sessions: make(map[string]map[string]memoryValue)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.sessions[id]))
	for k, v := range s.sessions[id] {
		out[k] = v.value
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, id string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = make(map[string]memoryValue, len(values))
		s.sessions[id] = sess
	}
	now := s.now()
	for k, v := range values {
		sess[k] = memoryValue{value: v, updatedAt: now}
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(sess, k)
	}
	if len(sess) == 0 {
		delete(s.sessions, id)
	}
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		newest := time.Time{}
		for _, v := range sess {
			if v.updatedAt.After(newest) {
				newest = v.updatedAt
			}
		}
		if newest.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
