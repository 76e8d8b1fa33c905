// Package components registers module components and runs their setup hooks.
package components

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/a-h/templ"
	"github.com/louisbranch/plughost/internal/platform/i18n/catalog"
	"github.com/louisbranch/plughost/internal/services/host/bundle"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound reports an unregistered component id.
var ErrNotFound = errors.New("component not found")

// Registry maps component ids to their implementation. Registrations are
// never removed; the last one for an id wins.
type Registry struct {
	mu         sync.RWMutex
	components map[string]templ.Component
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: map[string]templ.Component{}}
}

// Register stores component under id.
func (r *Registry) Register(id string, component templ.Component) {
	r.mu.Lock()
	r.components[id] = component
	r.mu.Unlock()
}

// Lookup returns the component registered under id.
func (r *Registry) Lookup(id string) (templ.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	component, ok := r.components[id]
	return component, ok
}

// IDs returns registered ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.components))
	for id := range r.components {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Render writes the component registered under id to w.
func (r *Registry) Render(ctx context.Context, id string, w io.Writer) error {
	component, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := component.Render(ctx, w); err != nil {
		return fmt.Errorf("render %s: %w", id, err)
	}
	return nil
}

// Initializer registers a module's components and runs their hooks.
type Initializer struct {
	registry *Registry
	merger   catalog.Merger
}

// NewInitializer returns an initializer writing to registry and merging
// embedded translations into merger. merger may be nil.
func NewInitializer(registry *Registry, merger catalog.Merger) *Initializer {
	return &Initializer{registry: registry, merger: merger}
}

// Initialize merges embedded translations, registers every component and
// runs all init hooks concurrently. It returns once every hook settled,
// with the first hook error observed.
func (i *Initializer) Initialize(ctx context.Context, host bundle.HostContext, defs []bundle.ComponentDef) error {
	if i.merger != nil {
		for _, def := range defs {
			for locale, messages := range def.I18n {
				if err := i.merger.MergeLocaleMessage(locale, messages); err != nil {
					log.Printf("components: merge %s messages for %s: %v", locale, def.ID, err)
				}
			}
		}
	}

	var group errgroup.Group
	for _, def := range defs {
		i.registry.Register(def.ID, def.Renderable())
		if def.Init == nil {
			continue
		}
		group.Go(func() error {
			return runHook(ctx, host, def)
		})
	}
	return group.Wait()
}

func runHook(ctx context.Context, host bundle.HostContext, def bundle.ComponentDef) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("component %s init panicked: %v", def.ID, recovered)
		}
		if err != nil {
			log.Printf("components: %v", err)
		}
	}()
	return def.Init(ctx, host)
}
