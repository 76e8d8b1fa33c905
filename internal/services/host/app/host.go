// Package app composes the host runtime and serves it over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/plughost/internal/platform/i18n/catalog"
	"github.com/louisbranch/plughost/internal/platform/requestmeta"
	"github.com/louisbranch/plughost/internal/platform/timeouts"
	"github.com/louisbranch/plughost/internal/services/host/apiclient"
	"github.com/louisbranch/plughost/internal/services/host/bundle"
	"github.com/louisbranch/plughost/internal/services/host/components"
	"github.com/louisbranch/plughost/internal/services/host/container"
	"github.com/louisbranch/plughost/internal/services/host/credentials"
	"github.com/louisbranch/plughost/internal/services/host/dispatch"
	"github.com/louisbranch/plughost/internal/services/host/loader"
	"github.com/louisbranch/plughost/internal/services/host/notify"
	"github.com/louisbranch/plughost/internal/services/host/ontology"
	"github.com/louisbranch/plughost/internal/services/host/resolver"
	"github.com/louisbranch/plughost/internal/services/host/serviceid"
	"github.com/louisbranch/plughost/internal/services/host/session"
	"github.com/louisbranch/plughost/internal/services/host/state"
	"github.com/louisbranch/plughost/internal/services/host/storage"
	"github.com/louisbranch/plughost/internal/services/host/storage/sqlite"
	"github.com/louisbranch/plughost/internal/services/host/theme"
)

// Bootstrap service names registered in every container.
const (
	ServiceHTTPClient       = "IApiHttpClient"
	ServiceAPIConfiguration = "IAPIConfiguration"
	ServiceHost             = "Host"
)

// SecurityModule is the compiled-in module owning the authentication service.
const SecurityModule = "opensilex-security"

// Config wires a Host.
type Config struct {
	BaseAPI      string
	AppURL       string
	CookieSuffix string
	ThemeModule  string
	ThemeName    string
	// LedgerPath enables the module load ledger when set.
	LedgerPath          string
	Preloaded           []string
	HTTPTimeout         time.Duration
	TrustForwardedProto bool
	// Native holds compiled-in modules. Nil uses DefaultNative.
	Native *bundle.Native
	// Script runs modules that are not compiled in. Nil uses the Lua runtime.
	Script bundle.Runtime
	Now    func() time.Time
}

// Host owns every registry of one running application instance.
type Host struct {
	cfg Config

	locales     *catalog.Bundle
	store       *state.Store
	busy        *state.Indicator
	board       *notify.Board
	dispatcher  *dispatch.Dispatcher
	container   *container.Container
	components  *components.Registry
	native      *bundle.Native
	loader      *loader.Loader
	resolver    *resolver.Resolver
	session     *session.Manager
	jar         *session.JarStore
	api         *apiclient.Client
	credentials *credentials.Cache
	ontology    *ontology.Index
	themes      *theme.Resolver
	ledger      *sqlite.Store
}

// NewHost builds a host. The session stored in the host cookie jar, if any,
// becomes the current user.
func NewHost(ctx context.Context, cfg Config) (*Host, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	cfg.BaseAPI = strings.TrimRight(strings.TrimSpace(cfg.BaseAPI), "/")
	if cfg.BaseAPI == "" {
		return nil, errors.New("base api url is required")
	}
	if strings.TrimSpace(cfg.AppURL) == "" {
		cfg.AppURL = cfg.BaseAPI
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = timeouts.HTTPClient
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Preloaded == nil {
		cfg.Preloaded = loader.DefaultPreloaded
	}

	locales, err := catalog.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	jar, err := session.NewJarStore(cfg.AppURL)
	if err != nil {
		return nil, fmt.Errorf("init cookie store: %w", err)
	}

	h := &Host{
		cfg:        cfg,
		locales:    locales,
		store:      state.NewStore(),
		board:      notify.NewBoard(cfg.Now),
		container:  container.New(),
		components: components.NewRegistry(),
		ontology:   ontology.NewIndex(),
		themes:     theme.NewResolver(cfg.BaseAPI, cfg.ThemeModule, cfg.ThemeName),
		jar:        jar,
	}
	h.busy = state.NewIndicator(h.store)
	h.session = session.NewManager(jar, cfg.CookieSuffix, cfg.Now)
	h.dispatcher = dispatch.New(dispatch.Config{
		Toaster:    h.board,
		Translator: locales,
		Store:      h.store,
		Busy:       h.busy,
	})
	h.api = apiclient.NewClient(apiclient.Config{
		BaseAPI: cfg.BaseAPI,
		Timeout: cfg.HTTPTimeout,
		Jar:     jar.Jar(),
		Token:   func() string { return h.store.User().Token },
	})

	h.native = cfg.Native
	if h.native == nil {
		h.native = DefaultNative(h.api)
	}
	script := cfg.Script
	if script == nil {
		script = bundle.NewLua()
	}

	var recorder loader.Recorder
	if strings.TrimSpace(cfg.LedgerPath) != "" {
		ledger, err := sqlite.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("open module ledger: %w", err)
		}
		h.ledger = ledger
		recorder = ledger
	}

	h.loader, err = loader.New(loader.Config{
		BaseAPI:     cfg.BaseAPI,
		Fetcher:     h.api,
		Runtime:     bundle.Composite{Native: h.native, Fallback: script},
		Container:   h.container,
		Initializer: components.NewInitializer(h.components, locales),
		Merger:      locales,
		Translator:  locales,
		Busy:        h.busy,
		Recorder:    recorder,
		Now:         cfg.Now,
	})
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	h.loader.Preload(cfg.Preloaded...)
	h.resolver = resolver.New(h.container, h.loader)
	h.credentials = credentials.New(h.resolver, func(err error) {
		h.dispatcher.Handle(err, "")
	})

	h.container.Bind(serviceid.Bootstrap(ServiceHTTPClient), apiclient.Executor(h.api))
	h.container.Bind(serviceid.Bootstrap(ServiceAPIConfiguration), h.api.Configuration())
	h.container.Bind(serviceid.Bootstrap(ServiceHost), h)

	h.store.Subscribe(h.syncSession)
	if identity := h.session.LoadIdentity(); !identity.IsAnonymous() {
		h.store.Commit(state.MutationLogin, identity)
		if identity.Locale != "" && locales.HasLocale(identity.Locale) {
			if err := locales.SetLocale(identity.Locale); err != nil {
				log.Printf("set user locale: %v", err)
			}
		}
	}
	return h, nil
}

// DefaultNative returns the compiled-in modules of every host.
func DefaultNative(api *apiclient.Client) *bundle.Native {
	native := bundle.NewNative()
	native.Register(SecurityModule, func(bundle.HostContext) (*bundle.Bundle, error) {
		return &bundle.Bundle{
			Exports: bundle.Exports{"name": SecurityModule},
			Services: map[string]any{
				"AuthenticationService": apiclient.NewAuthenticationService(api),
			},
		}, nil
	})
	return native
}

// syncSession mirrors login and logout into the host cookie jar.
func (h *Host) syncSession(mutation string, snapshot state.Snapshot) {
	switch mutation {
	case state.MutationLogin:
		h.session.Persist(snapshot.User)
	case state.MutationLogout:
		h.session.Clear()
	}
}

// Close releases the ledger.
func (h *Host) Close() error {
	if h == nil || h.ledger == nil {
		return nil
	}
	return h.ledger.Close()
}

// Load makes a module ready.
func (h *Host) Load(ctx context.Context, name string) (bundle.Exports, error) {
	return h.loader.Load(ctx, name)
}

// Resolve returns a service by identifier, loading its module on demand.
func (h *Host) Resolve(ctx context.Context, raw string) (any, error) {
	return h.resolver.ResolveString(ctx, raw)
}

// Login makes identity the current user.
func (h *Host) Login(identity session.Identity) {
	h.store.Commit(state.MutationLogin, identity)
}

// Logout returns to the anonymous user and clears the host session cookie.
func (h *Host) Logout() {
	h.store.Commit(state.MutationLogout, nil)
}

// User returns the current user.
func (h *Host) User() session.Identity {
	return h.store.User()
}

// Credentials returns the cached permission groups.
func (h *Host) Credentials(ctx context.Context) ([]apiclient.CredentialsGroup, error) {
	return h.credentials.Credentials(ctx)
}

// Locales returns the localization store.
func (h *Host) Locales() *catalog.Bundle {
	return h.locales
}

// Ontology returns the class label index.
func (h *Host) Ontology() *ontology.Index {
	return h.ontology
}

// Dispatcher returns the error dispatcher.
func (h *Host) Dispatcher() *dispatch.Dispatcher {
	return h.dispatcher
}

// Busy returns the busy indicator.
func (h *Host) Busy() *state.Indicator {
	return h.busy
}

// ResourceURI returns the URL of a theme file.
func (h *Host) ResourceURI(path string) string {
	return h.themes.ResourceURI(path)
}

// RDFIcon returns the icon class of an RDF type.
func (h *Host) RDFIcon(rdfType string) string {
	return h.themes.RDFIcon(rdfType)
}

// History lists recent module loads, newest first. It is empty without a
// ledger.
func (h *Host) History(ctx context.Context, module string, limit int) ([]storage.ModuleLoad, error) {
	if h.ledger == nil {
		return nil, nil
	}
	return h.ledger.ListModuleLoads(ctx, module, limit)
}

// QueryHistory lists recent module loads matching an AIP-160 filter. It is
// empty without a ledger.
func (h *Host) QueryHistory(ctx context.Context, filter string, limit int) ([]storage.ModuleLoad, error) {
	if h.ledger == nil {
		return nil, nil
	}
	return h.ledger.QueryModuleLoads(ctx, filter, limit)
}

func (h *Host) schemePolicy() requestmeta.SchemePolicy {
	return requestmeta.SchemePolicy{TrustForwardedProto: h.cfg.TrustForwardedProto}
}
