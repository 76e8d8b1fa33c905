// Package theme resolves theme resources and RDF type icons.
package theme

import (
	"net/url"
	"strings"
	"sync"
)

// DefaultIcon is used for RDF types without a configured icon.
const DefaultIcon = "folder"

// Resolver builds theme URLs from the host configuration.
type Resolver struct {
	base   string
	module string
	name   string

	mu    sync.RWMutex
	icons map[string]string
}

// NewResolver returns a resolver for the theme module/name pair. An empty
// pair serves resources from the application itself.
func NewResolver(baseAPI, module, name string) *Resolver {
	return &Resolver{
		base:   strings.TrimRight(strings.TrimSpace(baseAPI), "/"),
		module: strings.TrimSpace(module),
		name:   strings.TrimSpace(name),
		icons:  map[string]string{},
	}
}

// ResourceURI returns the URL of a theme file.
func (r *Resolver) ResourceURI(path string) string {
	if r.module == "" || r.name == "" {
		return "/app/" + path
	}
	return r.base + "/vuejs/theme/" + url.PathEscape(r.module) + "/" + url.PathEscape(r.name) + "/resource?filePath=" + url.QueryEscape(path)
}

// SetIcons replaces the RDF type to icon class mapping.
func (r *Resolver) SetIcons(icons map[string]string) {
	copied := make(map[string]string, len(icons))
	for rdfType, icon := range icons {
		copied[rdfType] = icon
	}
	r.mu.Lock()
	r.icons = copied
	r.mu.Unlock()
}

// RDFIcon returns the icon class of an RDF type.
func (r *Resolver) RDFIcon(rdfType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if icon := r.icons[rdfType]; icon != "" {
		return icon
	}
	return DefaultIcon
}
