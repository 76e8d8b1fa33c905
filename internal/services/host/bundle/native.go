package bundle

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory builds a compiled-in module bundle.
type Factory func(host HostContext) (*Bundle, error)

// Native runs modules compiled into the host binary.
type Native struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewNative returns an empty native registry.
func NewNative() *Native {
	return &Native{factories: map[string]Factory{}}
}

// Register adds or replaces the factory for module name.
func (n *Native) Register(name string, factory Factory) {
	if factory == nil {
		return
	}
	n.mu.Lock()
	n.factories[name] = factory
	n.mu.Unlock()
}

// Has reports whether name is compiled in.
func (n *Native) Has(name string) bool {
	if n == nil {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.factories[name]
	return ok
}

// Names returns the compiled-in module names in order.
func (n *Native) Names() []string {
	n.mu.RLock()
	out := make([]string, 0, len(n.factories))
	for name := range n.factories {
		out = append(out, name)
	}
	n.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Execute ignores the script body and builds the registered bundle.
func (n *Native) Execute(ctx context.Context, src Source, host HostContext) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	factory, ok := n.factories[src.Name]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotNative, src.Name)
	}
	built, err := factory(host)
	if err != nil {
		return nil, fmt.Errorf("build module %s: %w", src.Name, err)
	}
	if built == nil {
		return nil, fmt.Errorf("build module %s: nil bundle", src.Name)
	}
	if built.Name == "" {
		built.Name = src.Name
	}
	return built, nil
}

// Composite prefers compiled-in modules and falls back to a script runtime.
type Composite struct {
	Native   *Native
	Fallback Runtime
}

func (c Composite) Execute(ctx context.Context, src Source, host HostContext) (*Bundle, error) {
	if c.Native.Has(src.Name) {
		return c.Native.Execute(ctx, src, host)
	}
	if c.Fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotNative, src.Name)
	}
	return c.Fallback.Execute(ctx, src, host)
}
