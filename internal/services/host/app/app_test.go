package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/louisbranch/plughost/internal/services/host/session"
)

const inventoryScript = `
return {
  exports = { version = "2.0.0" },
  lang = { en = { inventory = { title = "Inventory" } } },
  components = {
    ["inventory-Widget"] = { template = "<div class=\"inventory\">" .. host.module .. "</div>" },
  },
  services = { Greeter = { greeting = "hello" } },
}
`

type backend struct {
	server      *httptest.Server
	credentials atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/vuejs/extension/js/inventory.js", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(inventoryScript))
	})
	mux.HandleFunc("GET /rest/vuejs/extension/js/opensilex-security.js", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("-- compiled in"))
	})
	mux.HandleFunc("GET /rest/security/credentials", func(w http.ResponseWriter, _ *http.Request) {
		b.credentials.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"metadata":{},"result":[{"group_id":"users","group_key_lang":"credential-groups.users","credentials":[{"id":"user-modification","label":"credential.default.modification"}]}]}`))
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func newTestHost(t *testing.T, b *backend, ledger bool) *Host {
	t.Helper()
	cfg := Config{
		BaseAPI:      b.server.URL + "/rest",
		AppURL:       "http://app.example.org/app",
		CookieSuffix: "demo",
		HTTPTimeout:  5 * time.Second,
	}
	if ledger {
		cfg.LedgerPath = filepath.Join(t.TempDir(), "ledger.db")
	}
	host, err := NewHost(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { _ = host.Close() })
	return host
}

func signedToken(t *testing.T, expires time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        "http://example.org/id/user/alice",
		"exp":        expires.Unix(),
		"email":      "alice@example.org",
		"first_name": "Alice",
		"last_name":  "Liddell",
		"lang":       "fr",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serve(h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestNewHostRequiresBaseAPI(t *testing.T) {
	t.Parallel()

	if _, err := NewHost(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing base api")
	}
}

func TestNewHostBindsBootstrapServices(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), false)
	for _, name := range []string{ServiceHTTPClient, ServiceAPIConfiguration, ServiceHost} {
		if _, err := host.resolver.GetString(name); err != nil {
			t.Fatalf("GetString(%q): %v", name, err)
		}
	}
	got, err := host.resolver.GetString(ServiceHost)
	if err != nil || got != host {
		t.Fatalf("Host service = %v, %v", got, err)
	}
	for _, name := range []string{"opensilex", "opensilex-front"} {
		if !host.loader.Loaded(name) {
			t.Fatalf("expected %s to be preloaded", name)
		}
	}
	if !host.User().IsAnonymous() {
		t.Fatal("expected anonymous user at startup")
	}
}

func TestHostLoginPersistsSessionCookie(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), false)
	identity, err := session.FromToken(signedToken(t, time.Now().Add(time.Hour)), time.Now())
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}

	host.Login(identity)
	if got := host.User().Email; got != "alice@example.org" {
		t.Fatalf("User().Email = %q", got)
	}
	if got, ok := host.jar.Get(host.session.CookieName()); !ok || got != identity.Token {
		t.Fatalf("jar cookie = %q, %v", got, ok)
	}

	host.Logout()
	if !host.User().IsAnonymous() {
		t.Fatal("expected anonymous after logout")
	}
	if _, ok := host.jar.Get(host.session.CookieName()); ok {
		t.Fatal("expected cookie removed after logout")
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestHost(t, newBackend(t), false))
	rec := serve(h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoadModuleThenResolveAndRender(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), true)
	h := NewHandler(host)

	rec := serve(h, http.MethodPost, "/api/modules/inventory/load", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d body = %s", rec.Code, rec.Body.String())
	}
	exports, _ := decode(t, rec)["exports"].(map[string]any)
	if exports["version"] != "2.0.0" {
		t.Fatalf("exports = %v", exports)
	}

	rec = serve(h, http.MethodGet, "/api/services/inventory.Greeter?peek=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("service status = %d body = %s", rec.Code, rec.Body.String())
	}
	value, _ := decode(t, rec)["value"].(map[string]any)
	if value["greeting"] != "hello" {
		t.Fatalf("service value = %v", value)
	}

	rec = serve(h, http.MethodGet, "/api/components/inventory-Widget", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("component status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != `<div class="inventory">inventory</div>` {
		t.Fatalf("component body = %q", got)
	}

	rec = serve(h, http.MethodGet, "/api/head", "")
	if !strings.Contains(rec.Body.String(), "/rest/vuejs/extension/css/inventory.css") {
		t.Fatalf("head = %q", rec.Body.String())
	}

	rec = serve(h, http.MethodGet, "/api/modules?module=inventory", "")
	history, _ := decode(t, rec)["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("history = %v", history)
	}

	rec = serve(h, http.MethodGet, `/api/modules?filter=outcome%20%3D%20%22failed%22`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("filter status = %d body = %s", rec.Code, rec.Body.String())
	}
	if failed, _ := decode(t, rec)["history"].([]any); len(failed) != 0 {
		t.Fatalf("failed history = %v", failed)
	}
	rec = serve(h, http.MethodGet, `/api/modules?filter=nope%20%3D%201`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d, want 400", rec.Code)
	}

	if got := host.locales.TranslateIn("en", "inventory.title"); got != "Inventory" {
		t.Fatalf("merged message = %q", got)
	}
}

func TestResolveLoadsModuleOnDemand(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), false)
	h := NewHandler(host)

	rec := serve(h, http.MethodGet, "/api/services/inventory.Greeter?peek=1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("peek status = %d, want 404", rec.Code)
	}
	rec = serve(h, http.MethodGet, "/api/services/inventory.Greeter", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !host.loader.Loaded("inventory") {
		t.Fatal("expected inventory loaded")
	}
}

func TestMissingModuleReportsError(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), false)
	h := NewHandler(host)

	rec := serve(h, http.MethodGet, "/api/services/ghost.Service", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decode(t, rec)
	if body["category"] != "unexpected" {
		t.Fatalf("category = %v", body["category"])
	}

	rec = serve(h, http.MethodGet, "/api/notifications", "")
	toasts, _ := decode(t, rec)["notifications"].([]any)
	if len(toasts) != 1 {
		t.Fatalf("notifications = %v", toasts)
	}
}

func TestInvalidServiceID(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestHost(t, newBackend(t), false))
	rec := serve(h, http.MethodGet, "/api/services/a.b.c", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decode(t, rec)["category"]; got != "constraint" {
		t.Fatalf("category = %v", got)
	}
}

func TestUnknownComponent(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestHost(t, newBackend(t), false))
	rec := serve(h, http.MethodGet, "/api/components/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), false)
	h := NewHandler(host)
	token := signedToken(t, time.Now().Add(time.Hour))

	rec := serve(h, http.MethodPost, "/api/session", `{"token":"`+token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("post status = %d body = %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != session.CookieName("demo") {
		t.Fatalf("cookies = %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("expected HttpOnly session cookie")
	}

	rec = serve(h, http.MethodGet, "/api/session", "", cookies[0])
	body := decode(t, rec)
	if body["anonymous"] != false {
		t.Fatalf("session = %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "alice@example.org" {
		t.Fatalf("user = %v", user)
	}

	rec = serve(h, http.MethodDelete, "/api/session", "", cookies[0])
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("cleared cookies = %v", cleared)
	}
}

func TestSessionRejectsBadToken(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestHost(t, newBackend(t), false))
	for _, body := range []string{`{"token":"nope"}`, `not json`} {
		rec := serve(h, http.MethodPost, "/api/session", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("POST %q status = %d, want 400", body, rec.Code)
		}
	}
	expired := signedToken(t, time.Now().Add(-time.Minute))
	rec := serve(h, http.MethodPost, "/api/session", `{"token":"`+expired+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expired token status = %d, want 400", rec.Code)
	}
}

func TestCredentialsAreCached(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	h := NewHandler(newTestHost(t, b, false))

	for range 2 {
		rec := serve(h, http.MethodGet, "/api/credentials", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
		}
		groups, _ := decode(t, rec)["groups"].([]any)
		if len(groups) != 1 {
			t.Fatalf("groups = %v", groups)
		}
	}
	if got := b.credentials.Load(); got != 1 {
		t.Fatalf("credentials requests = %d, want 1", got)
	}
}

func TestMessagesUseAcceptLanguage(t *testing.T) {
	t.Parallel()

	h := NewHandler(newTestHost(t, newBackend(t), false))
	req := httptest.NewRequest(http.MethodGet, "/api/i18n", nil)
	req.Header.Set("Accept-Language", "fr-CA, en;q=0.5")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Language"); got != "fr" {
		t.Fatalf("Content-Language = %q, want fr", got)
	}

	rec = serve(h, http.MethodGet, "/api/i18n/xx", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown locale status = %d, want 404", rec.Code)
	}
}

func TestThemeRoutes(t *testing.T) {
	t.Parallel()

	host := newTestHost(t, newBackend(t), false)
	host.themes.SetIcons(map[string]string{"http://example.org/Device": "ik-device"})
	h := NewHandler(host)

	rec := serve(h, http.MethodGet, "/api/theme/icon?type=http://example.org/Device", "")
	if got := decode(t, rec)["icon"]; got != "ik-device" {
		t.Fatalf("icon = %v", got)
	}
	rec = serve(h, http.MethodGet, "/api/theme/resource?path=images/logo.png", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/app/images/logo.png" {
		t.Fatalf("Location = %q", got)
	}
}

func TestNewServerValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(nil, ServerConfig{HTTPAddr: ":0"}); err == nil {
		t.Fatal("expected error for nil host")
	}
	host := newTestHost(t, newBackend(t), false)
	if _, err := NewServer(host, ServerConfig{}); err == nil {
		t.Fatal("expected error for missing address")
	}
	server, err := NewServer(host, ServerConfig{HTTPAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := server.ListenAndServe(ctx); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
}
