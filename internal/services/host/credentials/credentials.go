// Package credentials caches the permission groups of the backend.
package credentials

import (
	"context"
	"fmt"
	"sync"

	"github.com/louisbranch/plughost/internal/services/host/apiclient"
	"golang.org/x/sync/singleflight"
)

// ServiceID is the container identifier of the authentication service.
const ServiceID = "opensilex-security.AuthenticationService"

// Source lists permission groups.
type Source interface {
	CredentialsGroups(ctx context.Context) ([]apiclient.CredentialsGroup, error)
}

// Services resolves container services, loading modules as needed.
type Services interface {
	ResolveString(ctx context.Context, raw string) (any, error)
}

// Cache fetches credentials groups once per host.
type Cache struct {
	services Services
	report   func(error)
	group    singleflight.Group

	mu     sync.RWMutex
	groups []apiclient.CredentialsGroup
	err    error
	done   bool
}

// New returns an empty cache. report may be nil.
func New(services Services, report func(error)) *Cache {
	return &Cache{services: services, report: report}
}

// Credentials returns the cached groups, fetching them on first use.
// Concurrent callers share one request. The first outcome is kept for the
// lifetime of the cache; a failure is reported once and returned to every
// later caller.
func (c *Cache) Credentials(ctx context.Context) ([]apiclient.CredentialsGroup, error) {
	if groups, ok, err := c.cached(); ok {
		return groups, err
	}

	detached := context.WithoutCancel(ctx)
	result := c.group.DoChan("credentials", func() (any, error) {
		return c.fetch(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]apiclient.CredentialsGroup)), nil
	}
}

func (c *Cache) cached() ([]apiclient.CredentialsGroup, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.done {
		return nil, false, nil
	}
	if c.err != nil {
		return nil, true, c.err
	}
	return clone(c.groups), true, nil
}

func (c *Cache) fetch(ctx context.Context) ([]apiclient.CredentialsGroup, error) {
	if groups, ok, err := c.cached(); ok {
		return groups, err
	}
	groups, err := c.request(ctx)

	c.mu.Lock()
	c.groups = clone(groups)
	c.err = err
	c.done = true
	c.mu.Unlock()

	if err != nil {
		if c.report != nil {
			c.report(err)
		}
		return nil, err
	}
	return groups, nil
}

func (c *Cache) request(ctx context.Context) ([]apiclient.CredentialsGroup, error) {
	value, err := c.services.ResolveString(ctx, ServiceID)
	if err != nil {
		return nil, fmt.Errorf("resolve authentication service: %w", err)
	}
	source, ok := value.(Source)
	if !ok {
		return nil, fmt.Errorf("service %s has type %T", ServiceID, value)
	}
	groups, err := source.CredentialsGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return groups, nil
}

func clone(groups []apiclient.CredentialsGroup) []apiclient.CredentialsGroup {
	if groups == nil {
		return nil
	}
	out := make([]apiclient.CredentialsGroup, len(groups))
	copy(out, groups)
	return out
}
