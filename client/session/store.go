package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"medportal/internal/repository"
)

// Persisted entry names. The email entry is optional.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyRole         = "role"
	KeyEmail        = "email"
)

// Tokens is the session the API client authenticates with.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         string `json:"role"`
	Email        string `json:"email,omitempty"`
}

// Listener receives the new tokens, or nil once the session is cleared.
// It may call Get but must not call Set or Clear.
type Listener func(t *Tokens)

// Store owns the session tokens. Reads are served from an in-memory mirror
// that is filled from the persisted KV store on first access.
type Store struct {
	kv repository.KVStore

	// writeMu orders each change together with its notification, so the
	// last notification always matches the mirror.
	writeMu sync.Mutex

	mu     sync.RWMutex
	mirror *Tokens
	loaded bool

	subMu  sync.Mutex
	subs   map[int]Listener
	nextID int
}

func NewStore(kv repository.KVStore) *Store {
	if kv == nil {
		kv = repository.NewMemoryKVStore()
	}
	return &Store{
		kv:   kv,
		subs: make(map[int]Listener),
	}
}

// Get returns a copy of the current tokens, or nil when no session exists.
func (s *Store) Get(ctx context.Context) (*Tokens, error) {
	s.mu.RLock()
	if s.loaded {
		t := s.mirror.clone()
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		t, err := s.read(ctx)
		if err != nil {
			return nil, err
		}
		s.mirror = t
		s.loaded = true
	}
	return s.mirror.clone(), nil
}

func (s *Store) read(ctx context.Context) (*Tokens, error) {
	values := make(map[string]string, 4)
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyRole, KeyEmail} {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read session %s: %w", key, err)
		}
		values[key] = string(raw)
	}
	if values[KeyAccessToken] == "" {
		return nil, nil
	}
	return &Tokens{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		Role:         values[KeyRole],
		Email:        values[KeyEmail],
	}, nil
}

// Set persists t, updates the mirror and notifies subscribers.
func (s *Store) Set(ctx context.Context, t Tokens) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	err := s.write(ctx, t)
	if err == nil {
		s.mirror = t.clone()
		s.loaded = true
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(t.clone())
	return nil
}

func (s *Store) write(ctx context.Context, t Tokens) error {
	entries := []struct{ key, value string }{
		{KeyAccessToken, t.AccessToken},
		{KeyRefreshToken, t.RefreshToken},
		{KeyRole, t.Role},
	}
	for _, e := range entries {
		if err := s.kv.Set(ctx, e.key, []byte(e.value), 0); err != nil {
			return fmt.Errorf("persist session %s: %w", e.key, err)
		}
	}
	if t.Email == "" {
		if err := s.kv.Delete(ctx, KeyEmail); err != nil {
			return fmt.Errorf("persist session %s: %w", KeyEmail, err)
		}
		return nil
	}
	if err := s.kv.Set(ctx, KeyEmail, []byte(t.Email), 0); err != nil {
		return fmt.Errorf("persist session %s: %w", KeyEmail, err)
	}
	return nil
}

// Clear removes the session from the mirror and the persisted store.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.mirror = nil
	s.loaded = true
	err := s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyRole, KeyEmail)
	s.mu.Unlock()

	s.notify(nil)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify runs listeners synchronously in subscription order.
func (s *Store) notify(t *Tokens) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(t.clone())
	}
}

func (t *Tokens) clone() *Tokens {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
