// Package loader fetches, executes and wires host modules, at most once per
// module name.
package loader

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/plughost/internal/platform/i18n/catalog"
	"github.com/louisbranch/plughost/internal/services/host/bundle"
	"github.com/louisbranch/plughost/internal/services/host/components"
	"github.com/louisbranch/plughost/internal/services/host/container"
	"github.com/louisbranch/plughost/internal/services/host/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/louisbranch/plughost/internal/services/host/loader"

// DefaultPreloaded are the modules built into every host.
var DefaultPreloaded = []string{"opensilex", "opensilex-front"}

// Fetcher retrieves module assets.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Busy shows progress while a module loads.
type Busy interface {
	Show()
	Hide()
}

// Recorder keeps a history of load attempts.
type Recorder interface {
	RecordModuleLoad(ctx context.Context, record storage.ModuleLoad) error
}

// Config wires a Loader.
type Config struct {
	BaseAPI     string
	Fetcher     Fetcher
	Runtime     bundle.Runtime
	Container   *container.Container
	Initializer *components.Initializer
	Merger      catalog.Merger
	Translator  catalog.Translator
	Head        *Head
	// Busy and Recorder are optional.
	Busy     Busy
	Recorder Recorder
	Now      func() time.Time
}

// Loader loads modules on demand.
type Loader struct {
	cfg    Config
	base   string
	tracer trace.Tracer
	group  singleflight.Group

	mu     sync.RWMutex
	loaded map[string]bundle.Exports
}

// New validates cfg and returns a loader with nothing loaded.
func New(cfg Config) (*Loader, error) {
	switch {
	case cfg.Fetcher == nil:
		return nil, errors.New("loader: fetcher is required")
	case cfg.Runtime == nil:
		return nil, errors.New("loader: runtime is required")
	case cfg.Container == nil:
		return nil, errors.New("loader: container is required")
	case cfg.Initializer == nil:
		return nil, errors.New("loader: initializer is required")
	}
	if cfg.Head == nil {
		cfg.Head = NewHead()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{
		cfg:    cfg,
		base:   strings.TrimRight(strings.TrimSpace(cfg.BaseAPI), "/"),
		tracer: otel.Tracer(tracerName),
		loaded: map[string]bundle.Exports{},
	}, nil
}

// Head returns the document head receiving module stylesheets.
func (l *Loader) Head() *Head {
	return l.cfg.Head
}

// ScriptURL returns where the script of module name is served.
func (l *Loader) ScriptURL(name string) string {
	return l.base + "/vuejs/extension/js/" + url.PathEscape(name) + ".js"
}

// StylesheetURL returns where the stylesheet of module name is served.
func (l *Loader) StylesheetURL(name string) string {
	return l.base + "/vuejs/extension/css/" + url.PathEscape(name) + ".css"
}

// Preload marks built-in modules as loaded without fetching them.
func (l *Loader) Preload(names ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := l.loaded[name]; !ok {
			l.loaded[name] = bundle.Exports{}
		}
	}
}

// Loaded reports whether name finished loading.
func (l *Loader) Loaded(name string) bool {
	_, ok := l.exports(name)
	return ok
}

// LoadedModules returns the loaded module names in order.
func (l *Loader) LoadedModules() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		out = append(out, name)
	}
	l.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (l *Loader) exports(name string) (bundle.Exports, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	exports, ok := l.loaded[name]
	return exports, ok
}

// Load makes module name ready and returns its exports. Concurrent calls for
// the same name share one load; ctx only bounds this caller's wait.
func (l *Loader) Load(ctx context.Context, name string) (bundle.Exports, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &LoadError{Module: name, Stage: StageFetch, Err: errors.New("module name is required")}
	}
	if exports, ok := l.exports(name); ok {
		return exports, nil
	}

	detached := context.WithoutCancel(ctx)
	result := l.group.DoChan(name, func() (any, error) {
		return l.load(detached, name)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(bundle.Exports), nil
	}
}

// LoadAll loads every named module concurrently and returns their exports in
// input order, or the first error.
func (l *Loader) LoadAll(ctx context.Context, names []string) ([]bundle.Exports, error) {
	out := make([]bundle.Exports, len(names))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		group.Go(func() error {
			exports, err := l.Load(groupCtx, name)
			if err != nil {
				return err
			}
			out[i] = exports
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) load(ctx context.Context, name string) (bundle.Exports, error) {
	if exports, ok := l.exports(name); ok {
		return exports, nil
	}

	ctx, span := l.tracer.Start(ctx, "plughost.module.load", trace.WithAttributes(attribute.String("plughost.module", name)))
	defer span.End()

	started := l.cfg.Now()
	if l.cfg.Busy != nil {
		l.cfg.Busy.Show()
		defer l.cfg.Busy.Hide()
	}
	log.Printf("loading module %s", name)

	record := storage.ModuleLoad{Module: name, LoadedAt: started}
	if sc := span.SpanContext(); sc.IsValid() {
		record.TraceID = sc.TraceID().String()
		record.SpanID = sc.SpanID().String()
	}
	fail := func(stage string, err error) (bundle.Exports, error) {
		loadErr := &LoadError{Module: name, Stage: stage, Err: err}
		span.RecordError(loadErr)
		span.SetStatus(otelcodes.Error, loadErr.Error())
		log.Printf("module %s failed: %v", name, loadErr)
		record.Outcome = storage.LoadOutcomeFailed
		record.Error = loadErr.Error()
		l.record(ctx, record, started)
		return nil, loadErr
	}

	l.cfg.Head.AddStylesheet(l.StylesheetURL(name))

	scriptURL := l.ScriptURL(name)
	script, err := l.cfg.Fetcher.Fetch(ctx, scriptURL)
	if err != nil {
		return fail(StageFetch, err)
	}

	host := bundle.HostContext{Module: name, BaseAPI: l.base, Translator: l.cfg.Translator}
	executed, err := l.cfg.Runtime.Execute(ctx, bundle.Source{Name: name, URL: scriptURL, Script: script}, host)
	if err != nil {
		return fail(StageExecute, err)
	}

	if l.cfg.Merger != nil {
		for locale, messages := range executed.Lang {
			if err := l.cfg.Merger.MergeLocaleMessage(locale, messages); err != nil {
				log.Printf("module %s: merge %s messages: %v", name, locale, err)
			}
		}
	}
	l.cfg.Container.BindModule(name, executed.Services)

	record.Components = len(executed.Components)
	span.SetAttributes(attribute.Int("plughost.components", record.Components))
	if err := l.cfg.Initializer.Initialize(ctx, host, executed.Components); err != nil {
		return fail(StageInit, err)
	}

	exports := executed.Exports
	if exports == nil {
		exports = bundle.Exports{}
	}
	l.mu.Lock()
	l.loaded[name] = exports
	l.mu.Unlock()

	record.Outcome = storage.LoadOutcomeLoaded
	l.record(ctx, record, started)
	log.Printf("module %s loaded with %d components", name, record.Components)
	return exports, nil
}

func (l *Loader) record(ctx context.Context, record storage.ModuleLoad, started time.Time) {
	if l.cfg.Recorder == nil {
		return
	}
	record.Duration = l.cfg.Now().Sub(started)
	if err := l.cfg.Recorder.RecordModuleLoad(ctx, record); err != nil {
		log.Printf("record module load %s: %v", record.Module, err)
	}
}
