package session

import (
	"log"
	"net/http"
	"sync"
	"time"
)

// Manager persists and decodes the session token of one client.
type Manager struct {
	mu     sync.RWMutex
	suffix string
	store  CookieStore
	now    func() time.Time
}

// NewManager returns a manager backed by store. A nil now uses time.Now.
func NewManager(store CookieStore, suffix string, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, suffix: suffix, now: now}
}

// WithStore returns a manager sharing the suffix and clock but writing to
// store, used for per-request cookie stores.
func (m *Manager) WithStore(store CookieStore) *Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Manager{store: store, suffix: m.suffix, now: m.now}
}

// SetCookieSuffix changes the deployment suffix hashed into the cookie name.
func (m *Manager) SetCookieSuffix(suffix string) {
	m.mu.Lock()
	m.suffix = suffix
	m.mu.Unlock()
}

// CookieName returns the current session cookie name.
func (m *Manager) CookieName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CookieName(m.suffix)
}

// LoadIdentity reads the cookie and decodes it. A missing or undecodable
// token yields the anonymous identity; a valid one is persisted again to
// refresh its max-age.
func (m *Manager) LoadIdentity() Identity {
	token, ok := m.store.Get(m.CookieName())
	if !ok || token == "" {
		return Anonymous()
	}
	identity, err := FromToken(token, m.now())
	if err != nil {
		log.Printf("session: %v", err)
		return Anonymous()
	}
	m.Persist(identity)
	return identity
}

// Current decodes the stored token without refreshing the cookie.
func (m *Manager) Current() Identity {
	token, ok := m.store.Get(m.CookieName())
	if !ok || token == "" {
		return Anonymous()
	}
	identity, err := FromToken(token, m.now())
	if err != nil {
		return Anonymous()
	}
	return identity
}

// Persist writes the identity token with a max-age equal to its lifetime.
func (m *Manager) Persist(identity Identity) {
	if identity.IsAnonymous() {
		return
	}
	m.store.Set(&http.Cookie{
		Name:     m.CookieName(),
		Value:    identity.Token,
		Path:     "/",
		MaxAge:   identity.Lifetime(m.now()),
		Secure:   m.store.Secure(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie.
func (m *Manager) Clear() {
	m.store.Delete(m.CookieName())
}
