package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/louisbranch/plughost/internal/platform/requestmeta"
	"golang.org/x/net/publicsuffix"
)

// CookieStore persists cookies for one client.
type CookieStore interface {
	Get(name string) (string, bool)
	Set(cookie *http.Cookie)
	Delete(name string)
	Secure() bool
}

// JarStore keeps cookies in a cookie jar scoped to the application URL.
type JarStore struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
	url *url.URL
}

// NewJarStore returns a store for cookies of appURL.
func NewJarStore(appURL string) (*JarStore, error) {
	parsed, err := url.Parse(appURL)
	if err != nil {
		return nil, fmt.Errorf("parse app url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("app url %q has no host", appURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &JarStore{jar: jar, url: parsed}, nil
}

// Jar exposes the underlying jar so HTTP clients share the session.
func (s *JarStore) Jar() http.CookieJar {
	return s.jar
}

func (s *JarStore) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cookie := range s.jar.Cookies(s.url) {
		if cookie.Name == name {
			return cookie.Value, true
		}
	}
	return "", false
}

func (s *JarStore) Set(cookie *http.Cookie) {
	if cookie == nil {
		return
	}
	s.mu.Lock()
	s.jar.SetCookies(s.url, []*http.Cookie{cookie})
	s.mu.Unlock()
}

func (s *JarStore) Delete(name string) {
	s.mu.Lock()
	s.jar.SetCookies(s.url, []*http.Cookie{{Name: name, Path: "/", MaxAge: -1}})
	s.mu.Unlock()
}

func (s *JarStore) Secure() bool {
	return requestmeta.IsHTTPSURL(s.url)
}

// RequestStore reads cookies from an incoming request and writes them to
// its response.
type RequestStore struct {
	w      http.ResponseWriter
	r      *http.Request
	policy requestmeta.SchemePolicy
}

// NewRequestStore binds a store to one request/response pair.
func NewRequestStore(w http.ResponseWriter, r *http.Request, policy requestmeta.SchemePolicy) *RequestStore {
	return &RequestStore{w: w, r: r, policy: policy}
}

func (s *RequestStore) Get(name string) (string, bool) {
	if s.r == nil {
		return "", false
	}
	cookie, err := s.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func (s *RequestStore) Set(cookie *http.Cookie) {
	if s.w == nil || cookie == nil {
		return
	}
	http.SetCookie(s.w, cookie)
}

func (s *RequestStore) Delete(name string) {
	if s.w == nil {
		return
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *RequestStore) Secure() bool {
	return requestmeta.IsHTTPSWithPolicy(s.r, s.policy)
}
