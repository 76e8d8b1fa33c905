package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/plughost/internal/platform/requestctx"
	"github.com/louisbranch/plughost/internal/platform/timeouts"
	"github.com/louisbranch/plughost/internal/services/host/components"
	"github.com/louisbranch/plughost/internal/services/host/dispatch"
	"github.com/louisbranch/plughost/internal/services/host/loader"
	"github.com/louisbranch/plughost/internal/services/host/resolver"
	"github.com/louisbranch/plughost/internal/services/host/serviceid"
	"github.com/louisbranch/plughost/internal/services/host/session"
	"github.com/louisbranch/plughost/internal/services/host/storage"
	"github.com/louisbranch/plughost/internal/services/host/storage/sqlite"
	"golang.org/x/text/language"
)

const maxTokenBody = 16 << 10

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server exposes a Host over HTTP.
type Server struct {
	host            *Host
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// NewServer builds the HTTP surface of host.
func NewServer(host *Host, config ServerConfig) (*Server, error) {
	if host == nil {
		return nil, errors.New("host is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	return &Server{
		host:            host,
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           NewHandler(host),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
	}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("host server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("host server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

type handler struct {
	host *Host
}

// NewHandler returns the HTTP API of host.
func NewHandler(host *Host) http.Handler {
	h := &handler{host: host}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /api/modules", h.listModules)
	mux.HandleFunc("POST /api/modules/{name}/load", h.loadModule)
	mux.HandleFunc("GET /api/services/{id}", h.service)
	mux.HandleFunc("GET /api/components/{id}", h.component)
	mux.HandleFunc("GET /api/i18n", h.messages)
	mux.HandleFunc("GET /api/i18n/{locale}", h.messages)
	mux.HandleFunc("GET /api/session", h.getSession)
	mux.HandleFunc("POST /api/session", h.postSession)
	mux.HandleFunc("DELETE /api/session", h.deleteSession)
	mux.HandleFunc("GET /api/credentials", h.listCredentials)
	mux.HandleFunc("GET /api/notifications", h.notifications)
	mux.HandleFunc("GET /api/head", h.head)
	mux.HandleFunc("GET /api/theme/icon", h.icon)
	mux.HandleFunc("GET /api/theme/resource", h.resource)
	return h.withCaller(mux)
}

// withCaller records the caller's user and locale in the request context.
func (h *handler) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := h.requestSession(w, r).Current()
		ctx := r.Context()
		if !identity.IsAnonymous() {
			ctx = requestctx.WithUserURI(ctx, identity.URI)
		}
		ctx = requestctx.WithLocale(ctx, h.callerLocale(identity, r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) callerLocale(identity session.Identity, r *http.Request) string {
	if identity.Locale != "" && h.host.locales.HasLocale(identity.Locale) {
		return identity.Locale
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err == nil {
		for _, tag := range tags {
			if h.host.locales.HasLocale(tag.String()) {
				return tag.String()
			}
			if base, _ := tag.Base(); h.host.locales.HasLocale(base.String()) {
				return base.String()
			}
		}
	}
	return h.host.locales.Locale()
}

func (h *handler) requestSession(w http.ResponseWriter, r *http.Request) *session.Manager {
	return h.host.session.WithStore(session.NewRequestStore(w, r, h.host.schemePolicy()))
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listModules(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	var (
		history []storage.ModuleLoad
		err     error
	)
	if filter := query.Get("filter"); filter != "" {
		history, err = h.host.QueryHistory(r.Context(), filter, limit)
	} else {
		history, err = h.host.History(r.Context(), query.Get("module"), limit)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":      h.host.loader.LoadedModules(),
		"native":      h.host.native.Names(),
		"stylesheets": h.host.loader.Head().Stylesheets(),
		"history":     history,
	})
}

func (h *handler) loadModule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	exports, err := h.host.Load(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"module": name, "exports": exports})
}

func (h *handler) service(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	var (
		value any
		err   error
	)
	if r.URL.Query().Get("peek") == "1" {
		value, err = h.host.resolver.GetString(raw)
	} else {
		value, err = h.host.resolver.ResolveString(r.Context(), raw)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": raw, "type": fmt.Sprintf("%T", value), "value": describe(value)})
}

// describe returns value when it encodes as JSON and nil otherwise.
func describe(value any) any {
	if _, err := json.Marshal(value); err != nil {
		return nil
	}
	return value
}

func (h *handler) component(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.host.components.Lookup(id); !ok {
		h.writeError(w, fmt.Errorf("%w: %s", components.ErrNotFound, id))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.host.components.Render(r.Context(), id, w); err != nil {
		log.Printf("render component %s: %v", id, err)
	}
}

func (h *handler) messages(w http.ResponseWriter, r *http.Request) {
	locale := r.PathValue("locale")
	if locale == "" {
		locale = requestctx.LocaleFromContext(r.Context())
	}
	if !h.host.locales.HasLocale(locale) {
		h.writeError(w, statusError{code: http.StatusNotFound, err: fmt.Errorf("locale %q not found", locale)})
		return
	}
	w.Header().Set("Content-Language", locale)
	writeJSON(w, http.StatusOK, map[string]any{"locale": locale, "messages": h.host.locales.Messages(locale)})
}

type sessionResponse struct {
	Anonymous  bool             `json:"anonymous"`
	CookieName string           `json:"cookie_name"`
	User       session.Identity `json:"user"`
	Lifetime   int              `json:"lifetime"`
}

func (h *handler) sessionResponse(manager *session.Manager, identity session.Identity) sessionResponse {
	return sessionResponse{
		Anonymous:  identity.IsAnonymous(),
		CookieName: manager.CookieName(),
		User:       identity,
		Lifetime:   identity.Lifetime(h.host.cfg.Now()),
	}
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	manager := h.requestSession(w, r)
	writeJSON(w, http.StatusOK, h.sessionResponse(manager, manager.LoadIdentity()))
}

func (h *handler) postSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTokenBody)).Decode(&body); err != nil {
		h.writeError(w, statusError{code: http.StatusBadRequest, err: fmt.Errorf("decode session body: %w", err)})
		return
	}
	identity, err := session.FromToken(body.Token, h.host.cfg.Now())
	if err != nil {
		h.writeError(w, statusError{code: http.StatusBadRequest, err: err})
		return
	}
	manager := h.requestSession(w, r)
	manager.Persist(identity)
	writeJSON(w, http.StatusOK, h.sessionResponse(manager, identity))
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	manager := h.requestSession(w, r)
	manager.Clear()
	writeJSON(w, http.StatusOK, h.sessionResponse(manager, session.Anonymous()))
}

func (h *handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	groups, err := h.host.Credentials(r.Context())
	if err != nil {
		writeErrorJSON(w, err, errorStatus(err), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *handler) notifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notifications": h.host.board.Visible()})
}

func (h *handler) head(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.host.loader.Head().Component().Render(r.Context(), w); err != nil {
		log.Printf("render head: %v", err)
	}
}

func (h *handler) icon(w http.ResponseWriter, r *http.Request) {
	rdfType := r.URL.Query().Get("type")
	writeJSON(w, http.StatusOK, map[string]string{
		"type":  rdfType,
		"icon":  h.host.RDFIcon(rdfType),
		"label": h.host.ontology.Label(rdfType),
	})
}

func (h *handler) resource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimLeft(r.URL.Query().Get("path"), "/")
	if path == "" {
		h.writeError(w, statusError{code: http.StatusBadRequest, err: errors.New("path is required")})
		return
	}
	http.Redirect(w, r, h.host.ResourceURI(path), http.StatusFound)
}

// statusError attaches an HTTP status to a local failure.
type statusError struct {
	code int
	err  error
}

func (e statusError) Error() string   { return e.err.Error() }
func (e statusError) Unwrap() error   { return e.err }
func (e statusError) HTTPStatus() int { return e.code }

// errorStatus maps err to the status written to the caller.
func errorStatus(err error) int {
	if code, ok := dispatch.StatusOf(err); ok {
		return code
	}
	switch {
	case errors.Is(err, serviceid.ErrInvalid), errors.Is(err, session.ErrDecode), errors.Is(err, sqlite.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, components.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrLoad):
		return http.StatusBadGateway
	case errors.Is(err, resolver.ErrUnresolved):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err through the dispatcher and writes it as JSON.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := errorStatus(err)
	category := h.host.dispatcher.Handle(statusError{code: code, err: err}, "")
	writeErrorJSON(w, err, code, category)
}

func writeErrorJSON(w http.ResponseWriter, err error, code int, category dispatch.Category) {
	if category == "" {
		category, _ = dispatch.Classify(statusError{code: code, err: err})
	}
	writeJSON(w, code, map[string]any{
		"error":    err.Error(),
		"category": category,
		"status":   code,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json response: %v", err)
	}
}

// Run builds a host and serves it until ctx ends.
func Run(ctx context.Context, cfg Config, serverCfg ServerConfig) error {
	host, err := NewHost(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init host: %w", err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			log.Printf("close host: %v", err)
		}
	}()

	server, err := NewServer(host, serverCfg)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}
