// Package container is the host's service registry.
package container

import (
	"sort"
	"sync"

	"github.com/louisbranch/plughost/internal/services/host/serviceid"
)

// Container maps validated service identifiers to values.
type Container struct {
	mu       sync.RWMutex
	services map[serviceid.ID]any
}

// New returns an empty container.
func New() *Container {
	return &Container{services: map[serviceid.ID]any{}}
}

// Bind stores value under id, replacing any previous binding.
func (c *Container) Bind(id serviceid.ID, value any) {
	c.mu.Lock()
	c.services[id] = value
	c.mu.Unlock()
}

// BindModule binds every service of a module under "<module>.<name>".
func (c *Container) BindModule(module string, services map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, value := range services {
		c.services[serviceid.Qualified(module, name)] = value
	}
}

// Lookup returns the value bound to id. A binding to nil is reported as
// present.
func (c *Container) Lookup(id serviceid.ID) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.services[id]
	return value, ok
}

// IDs returns the bound identifiers in lexical order.
func (c *Container) IDs() []serviceid.ID {
	c.mu.RLock()
	out := make([]serviceid.ID, 0, len(c.services))
	for id := range c.services {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
