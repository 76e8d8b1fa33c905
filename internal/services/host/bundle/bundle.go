// Package bundle turns fetched module scripts into the capabilities a module
// contributes to the host: exports, locale messages, components and services.
package bundle

import (
	"context"
	"errors"
	"log"

	"github.com/a-h/templ"
	"github.com/louisbranch/plughost/internal/platform/i18n/catalog"
)

// ErrNotNative reports a module with no compiled-in definition.
var ErrNotNative = errors.New("module is not compiled into the host")

// Exports is the value a module exposes once loaded.
type Exports map[string]any

// Messages maps a locale to its nested message tree.
type Messages map[string]map[string]any

// Hook is a component setup step run once when its module loads.
type Hook func(ctx context.Context, host HostContext) error

// ComponentDef declares one component of a module.
type ComponentDef struct {
	ID string
	// Template is raw markup used when Component is nil.
	Template  string
	Component templ.Component
	I18n      Messages
	Init      Hook
}

// Renderable returns the component implementation.
func (d ComponentDef) Renderable() templ.Component {
	if d.Component != nil {
		return d.Component
	}
	return templ.Raw(d.Template)
}

// Bundle is the executed form of a module script.
type Bundle struct {
	Name       string
	Exports    Exports
	Lang       Messages
	Components []ComponentDef
	Services   map[string]any
}

// Source is a fetched module script.
type Source struct {
	Name   string
	URL    string
	Script []byte
}

// HostContext is what the host hands to module code.
type HostContext struct {
	Module     string
	BaseAPI    string
	Translator catalog.Translator
}

// Translate resolves key through the host translator, echoing the key when
// none is configured.
func (h HostContext) Translate(key string, args ...any) string {
	if h.Translator == nil {
		return key
	}
	return h.Translator.Translate(key, args...)
}

// Logf logs on behalf of the module.
func (h HostContext) Logf(format string, args ...any) {
	log.Printf("module %s: "+format, append([]any{h.Module}, args...)...)
}

// Runtime executes a module script.
type Runtime interface {
	Execute(ctx context.Context, src Source, host HostContext) (*Bundle, error)
}
