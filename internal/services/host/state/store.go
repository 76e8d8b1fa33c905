// Package state holds the application session state and the busy indicator.
package state

import (
	"log"
	"sync"

	"github.com/louisbranch/plughost/internal/services/host/session"
)

// Mutations understood by Store.
const (
	MutationShowLoader = "showLoader"
	MutationHideLoader = "hideLoader"
	MutationLogin      = "login"
	MutationLogout     = "logout"
)

// Committer applies named mutations to application state.
type Committer interface {
	Commit(mutation string, payload any)
}

// Snapshot is a read-only copy of Store state.
type Snapshot struct {
	LoaderVisible bool
	User          session.Identity
}

// Store is the in-process application state.
type Store struct {
	mu            sync.RWMutex
	loaderVisible bool
	user          session.Identity
	listeners     []func(mutation string, snapshot Snapshot)
}

// NewStore returns a store holding the anonymous identity.
func NewStore() *Store {
	return &Store{user: session.Anonymous()}
}

// Commit applies mutation. Unknown mutations and mismatched payloads are
// logged and ignored.
func (s *Store) Commit(mutation string, payload any) {
	s.mu.Lock()
	switch mutation {
	case MutationShowLoader:
		s.loaderVisible = true
	case MutationHideLoader:
		s.loaderVisible = false
	case MutationLogin:
		identity, ok := payload.(session.Identity)
		if !ok {
			s.mu.Unlock()
			log.Printf("state: login payload %T is not an identity", payload)
			return
		}
		s.user = identity
	case MutationLogout:
		s.user = session.Anonymous()
	default:
		s.mu.Unlock()
		log.Printf("state: unknown mutation %q", mutation)
		return
	}
	snapshot := s.snapshotLocked()
	listeners := append([]func(string, Snapshot){}, s.listeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(mutation, snapshot)
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// User returns the current identity.
func (s *Store) User() session.Identity {
	return s.Snapshot().User
}

// Subscribe registers a listener invoked after every applied mutation.
func (s *Store) Subscribe(listener func(mutation string, snapshot Snapshot)) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{LoaderVisible: s.loaderVisible, User: s.user}
}
