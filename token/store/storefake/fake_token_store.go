package storefake

import (
	"context"
	"sync"

	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/token/store"
)

var _ store.Store = (*FakeTokenStore)(nil)

type FakeTokenStore struct {
	token  string
	exists bool
	writes int
	lock   sync.RWMutex

	// SetErr, when non nil, is returned by Set without storing anything
	SetErr error
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{}
}

// NewFakeTokenStoreWith returns a store already holding token.
func NewFakeTokenStoreWith(token string) *FakeTokenStore {
	return &FakeTokenStore{token: token, exists: true}
}

func (s *FakeTokenStore) Get(_ context.Context) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if !s.exists {
		return "", errors.ErrNotFound
	}
	return s.token, nil
}

func (s *FakeTokenStore) Set(_ context.Context, token string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.token = token
	s.exists = true
	s.writes++
	return nil
}

func (s *FakeTokenStore) Delete(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.token = ""
	s.exists = false
	return nil
}

func (s *FakeTokenStore) Close() error {
	return nil
}

// Token returns the stored token and whether one is present.
func (s *FakeTokenStore) Token() (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.token, s.exists
}

// Writes counts successful Set calls.
func (s *FakeTokenStore) Writes() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.writes
}
