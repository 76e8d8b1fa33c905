// Package catalog is the host localization store.
//
// Messages are kept per locale as flat dotted keys ("component.common.errors.server-error").
// Nested payloads contributed by modules are flattened on merge, and later
// merges overwrite earlier values for the same key.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the fallback locale for every lookup.
const BaseLocale = "en"

// Merger receives localized message payloads from modules and components.
type Merger interface {
	MergeLocaleMessage(locale string, messages map[string]any) error
}

// Translator resolves a message key in the active locale.
type Translator interface {
	Translate(key string, args ...any) string
}

// Bundle stores messages for every known locale.
type Bundle struct {
	mu      sync.RWMutex
	locales map[string]map[string]string
	active  string
	builder *catalog.Builder
}

//go:embed locales/*/*.yaml
var embeddedCatalogFS embed.FS

// New returns an empty bundle whose active locale is BaseLocale.
func New() *Bundle {
	return &Bundle{
		locales: map[string]map[string]string{},
		active:  BaseLocale,
		builder: catalog.NewBuilder(),
	}
}

// LoadEmbedded loads the host's default catalogs.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedCatalogFS)
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files. Each file holds a
// nested YAML map; a key may only be defined once per locale.
func LoadFromFS(catalogFS fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(catalogFS, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	bundle := New()
	seen := map[string]map[string]string{}
	for _, filePath := range paths {
		data, err := fs.ReadFile(catalogFS, filePath)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", filePath, err)
		}
		var nested map[string]any
		if err := yaml.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", filePath, err)
		}
		if len(nested) == 0 {
			return nil, fmt.Errorf("catalog %s: messages are required", filePath)
		}
		flat, err := Flatten(nested)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", filePath, err)
		}
		locale, err := normalizeLocale(path.Base(path.Dir(filePath)))
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", filePath, err)
		}
		owners, ok := seen[locale]
		if !ok {
			owners = map[string]string{}
			seen[locale] = owners
		}
		for key := range flat {
			if previous, exists := owners[key]; exists {
				return nil, fmt.Errorf("catalog %s: duplicate key %q already defined in %s", filePath, key, previous)
			}
			owners[key] = filePath
		}
		if err := bundle.merge(locale, flat); err != nil {
			return nil, err
		}
	}

	if !bundle.HasLocale(BaseLocale) {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	return bundle, nil
}

// MergeLocaleMessage merges a nested message payload into locale.
func (b *Bundle) MergeLocaleMessage(locale string, messages map[string]any) error {
	if b == nil {
		return fmt.Errorf("catalog is not configured")
	}
	normalized, err := normalizeLocale(locale)
	if err != nil {
		return err
	}
	flat, err := Flatten(messages)
	if err != nil {
		return fmt.Errorf("merge %s messages: %w", normalized, err)
	}
	return b.merge(normalized, flat)
}

func (b *Bundle) merge(locale string, flat map[string]string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("parse locale tag %q: %w", locale, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	messages, ok := b.locales[locale]
	if !ok {
		messages = map[string]string{}
		b.locales[locale] = messages
	}
	for key, value := range flat {
		messages[key] = value
		if err := b.builder.SetString(tag, key, value); err != nil {
			return fmt.Errorf("register %s message %q: %w", locale, key, err)
		}
	}
	return nil
}

// SetLocale changes the active locale.
func (b *Bundle) SetLocale(locale string) error {
	normalized, err := normalizeLocale(locale)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.active = normalized
	b.mu.Unlock()
	return nil
}

// Locale returns the active locale.
func (b *Bundle) Locale() string {
	if b == nil {
		return BaseLocale
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Translate resolves key in the active locale, falling back to the locale's
// base language and then BaseLocale. Unknown keys are returned unchanged.
func (b *Bundle) Translate(key string, args ...any) string {
	return b.TranslateIn(b.Locale(), key, args...)
}

// TranslateIn resolves key in locale with the same fallback as Translate.
func (b *Bundle) TranslateIn(locale string, key string, args ...any) string {
	key = strings.TrimSpace(key)
	if b == nil || key == "" {
		return key
	}
	owner, ok := b.ownerLocale(locale, key)
	if !ok {
		return key
	}
	printer := message.NewPrinter(language.Make(owner), message.Catalog(b.builder))
	return printer.Sprintf(key, args...)
}

func (b *Bundle) ownerLocale(locale string, key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, candidate := range fallbackChain(locale) {
		if messages, ok := b.locales[candidate]; ok {
			if _, exists := messages[key]; exists {
				return candidate, true
			}
		}
	}
	return "", false
}

// HasLocale reports whether any message was merged for locale.
func (b *Bundle) HasLocale(locale string) bool {
	normalized, err := normalizeLocale(locale)
	if err != nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.locales[normalized]
	return ok
}

// Locales returns the sorted available locales.
func (b *Bundle) Locales() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.locales))
	for locale := range b.locales {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Messages returns a copy of the flat messages for one locale.
func (b *Bundle) Messages(locale string) map[string]string {
	normalized, err := normalizeLocale(locale)
	if err != nil {
		return map[string]string{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	source := b.locales[normalized]
	out := make(map[string]string, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}

// LocalLangCode returns the first available locale other than BaseLocale, or
// BaseLocale when no other locale is known.
func (b *Bundle) LocalLangCode() string {
	for _, locale := range b.Locales() {
		if locale != BaseLocale {
			return locale
		}
	}
	return BaseLocale
}

// Flatten turns a nested message payload into dotted keys. Leaf values must
// be strings, numbers or booleans.
func Flatten(nested map[string]any) (map[string]string, error) {
	out := map[string]string{}
	if err := flattenInto(out, "", nested); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]string, prefix string, nested map[string]any) error {
	for rawKey, value := range nested {
		key := strings.TrimSpace(rawKey)
		if key == "" {
			return fmt.Errorf("message key cannot be blank")
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch typed := value.(type) {
		case map[string]any:
			if err := flattenInto(out, key, typed); err != nil {
				return err
			}
		case map[string]string:
			for child, text := range typed {
				out[key+"."+strings.TrimSpace(child)] = text
			}
		case string:
			out[key] = typed
		case int, int64, float64, bool:
			out[key] = fmt.Sprint(typed)
		case nil:
			out[key] = ""
		default:
			return fmt.Errorf("message %q has unsupported type %T", key, value)
		}
	}
	return nil
}

func normalizeLocale(locale string) (string, error) {
	trimmed := strings.TrimSpace(locale)
	if trimmed == "" {
		return "", fmt.Errorf("locale is required")
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse locale tag %q: %w", trimmed, err)
	}
	return tag.String(), nil
}

func fallbackChain(locale string) []string {
	chain := make([]string, 0, 3)
	if normalized, err := normalizeLocale(locale); err == nil {
		chain = append(chain, normalized)
		if tag, err := language.Parse(normalized); err == nil {
			if base, confidence := tag.Base(); confidence != language.No && base.String() != normalized {
				chain = append(chain, base.String())
			}
		}
	}
	return append(chain, BaseLocale)
}
