// Package requestctx carries per-request caller details through context.
package requestctx

import "context"

type userURIContextKey struct{}

type localeContextKey struct{}

// WithUserURI stores the URI of the signed-in user.
func WithUserURI(ctx context.Context, uri string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userURIContextKey{}, uri)
}

// UserURIFromContext returns the signed-in user URI, empty for anonymous
// callers.
func UserURIFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userURIContextKey{}).(string)
	return value
}

// WithLocale stores the caller's preferred locale.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext returns the caller's preferred locale.
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(localeContextKey{}).(string)
	return value
}
