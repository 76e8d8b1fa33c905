// Package resolver looks services up in the container, loading the owning
// module on demand.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/plughost/internal/services/host/bundle"
	"github.com/louisbranch/plughost/internal/services/host/container"
	"github.com/louisbranch/plughost/internal/services/host/serviceid"
)

// ErrUnresolved reports a service that is not available.
var ErrUnresolved = errors.New("service unresolved")

// UnresolvedError names the service that could not be found.
type UnresolvedError struct {
	ID serviceid.ID
	// Err is the load failure that caused the miss, if any.
	Err error
}

func (e *UnresolvedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s unresolved: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("service %s unresolved", e.ID)
}

func (e *UnresolvedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnresolved}
	}
	return []error{ErrUnresolved, e.Err}
}

// ModuleLoader loads modules and reports their state.
type ModuleLoader interface {
	Load(ctx context.Context, name string) (bundle.Exports, error)
	Loaded(name string) bool
}

// Resolver resolves service identifiers.
type Resolver struct {
	container *container.Container
	modules   ModuleLoader
}

// New returns a resolver over c, loading modules through modules.
func New(c *container.Container, modules ModuleLoader) *Resolver {
	return &Resolver{container: c, modules: modules}
}

// Peek returns the service without loading anything. Module services are
// only visible once their module is loaded.
func (r *Resolver) Peek(id serviceid.ID) (any, bool) {
	if !id.IsBootstrap() && !r.modules.Loaded(id.Module) {
		return nil, false
	}
	return r.container.Lookup(id)
}

// Resolve returns the service, loading its module first on a miss.
func (r *Resolver) Resolve(ctx context.Context, id serviceid.ID) (any, error) {
	if value, ok := r.Peek(id); ok {
		return value, nil
	}
	if id.IsBootstrap() {
		return nil, &UnresolvedError{ID: id}
	}
	if _, err := r.modules.Load(ctx, id.Module); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnresolvedError{ID: id, Err: err}
	}
	if value, ok := r.Peek(id); ok {
		return value, nil
	}
	return nil, &UnresolvedError{ID: id}
}

// Get returns the service if it is already available.
func (r *Resolver) Get(id serviceid.ID) (any, error) {
	if value, ok := r.Peek(id); ok {
		return value, nil
	}
	return nil, &UnresolvedError{ID: id}
}

// ResolveString parses raw and resolves it. Format errors are returned
// before any loading.
func (r *Resolver) ResolveString(ctx context.Context, raw string) (any, error) {
	id, err := serviceid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, id)
}

// GetString parses raw and gets it.
func (r *Resolver) GetString(raw string) (any, error) {
	id, err := serviceid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return r.Get(id)
}

// ResolveAs resolves raw and asserts its type.
func ResolveAs[T any](ctx context.Context, r *Resolver, raw string) (T, error) {
	var zero T
	value, err := r.ResolveString(ctx, raw)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has type %T, want %T", raw, value, zero)
	}
	return typed, nil
}

// GetAs gets raw and asserts its type.
func GetAs[T any](r *Resolver, raw string) (T, error) {
	var zero T
	value, err := r.GetString(raw)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has type %T, want %T", raw, value, zero)
	}
	return typed, nil
}
