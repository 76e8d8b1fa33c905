package loader

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/a-h/templ"
)

// Head collects the stylesheet references injected by module loads.
type Head struct {
	mu          sync.RWMutex
	stylesheets []string
}

// NewHead returns an empty document head.
func NewHead() *Head {
	return &Head{}
}

// AddStylesheet appends a stylesheet reference. References are never
// deduplicated or checked.
func (h *Head) AddStylesheet(href string) {
	h.mu.Lock()
	h.stylesheets = append(h.stylesheets, href)
	h.mu.Unlock()
}

// Stylesheets returns the injected references in injection order.
func (h *Head) Stylesheets() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.stylesheets...)
}

// Component renders the injected references as link elements.
func (h *Head) Component() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		for _, href := range h.Stylesheets() {
			if _, err := fmt.Fprintf(w, "<link rel=\"stylesheet\" type=\"text/css\" href=\"%s\">\n", templ.EscapeString(href)); err != nil {
				return err
			}
		}
		return nil
	})
}
