package components

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/a-h/templ"
	"github.com/louisbranch/plughost/internal/services/host/bundle"
)

type recordingMerger struct {
	mu      sync.Mutex
	locales []string
}

func (m *recordingMerger) MergeLocaleMessage(locale string, _ map[string]any) error {
	m.mu.Lock()
	m.locales = append(m.locales, locale)
	m.mu.Unlock()
	return nil
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register("x", templ.Raw("<p>first</p>"))
	registry.Register("x", templ.Raw("<p>second</p>"))

	var buf bytes.Buffer
	if err := registry.Render(context.Background(), "x", &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.String() != "<p>second</p>" {
		t.Fatalf("rendered = %q, want second", buf.String())
	}
	if err := registry.Render(context.Background(), "missing", &buf); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInitializeIsolatesHookFailure(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	merger := &recordingMerger{}
	initializer := NewInitializer(registry, merger)

	var ran atomic.Int32
	wantErr := errors.New("second failed")
	defs := []bundle.ComponentDef{
		{ID: "a", Template: "<a></a>", Init: func(context.Context, bundle.HostContext) error { ran.Add(1); return nil }},
		{ID: "b", Template: "<b></b>", Init: func(context.Context, bundle.HostContext) error { ran.Add(1); return wantErr }},
		{ID: "c", Template: "<c></c>", Init: func(context.Context, bundle.HostContext) error { ran.Add(1); return nil },
			I18n: bundle.Messages{"en": {"c": map[string]any{"label": "C"}}}},
	}

	err := initializer.Initialize(context.Background(), bundle.HostContext{Module: "m"}, defs)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if ran.Load() != 3 {
		t.Fatalf("hooks ran = %d, want 3", ran.Load())
	}
	if ids := registry.IDs(); strings.Join(ids, ",") != "a,b,c" {
		t.Fatalf("IDs = %v", ids)
	}
	if len(merger.locales) != 1 || merger.locales[0] != "en" {
		t.Fatalf("merged locales = %v", merger.locales)
	}
}

func TestInitializeRecoversPanickingHook(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	defs := []bundle.ComponentDef{
		{ID: "p", Init: func(context.Context, bundle.HostContext) error { panic("kaboom") }},
		{ID: "q"},
	}
	err := NewInitializer(registry, nil).Initialize(context.Background(), bundle.HostContext{}, defs)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v, want panic error", err)
	}
	if _, ok := registry.Lookup("q"); !ok {
		t.Fatal("expected q registered")
	}
}

func TestInitializeWaitsForSlowHooks(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var finished atomic.Bool
	defs := []bundle.ComponentDef{
		{ID: "slow", Init: func(context.Context, bundle.HostContext) error {
			<-release
			finished.Store(true)
			return nil
		}},
		{ID: "fast", Init: func(context.Context, bundle.HostContext) error {
			close(release)
			return errors.New("fast failed")
		}},
	}
	err := NewInitializer(NewRegistry(), nil).Initialize(context.Background(), bundle.HostContext{}, defs)
	if err == nil {
		t.Fatal("expected error")
	}
	if !finished.Load() {
		t.Fatal("Initialize returned before every hook settled")
	}
}
