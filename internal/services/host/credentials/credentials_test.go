package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/plughost/internal/services/host/apiclient"
)

type fakeSource struct {
	calls atomic.Int32
	gate  chan struct{}
	mu    sync.Mutex
	err   error
}

func (f *fakeSource) CredentialsGroups(context.Context) ([]apiclient.CredentialsGroup, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []apiclient.CredentialsGroup{{GroupID: "users"}}, nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeServices struct {
	value any
	err   error
}

func (f fakeServices) ResolveString(_ context.Context, raw string) (any, error) {
	if raw != ServiceID {
		return nil, errors.New("unexpected id " + raw)
	}
	return f.value, f.err
}

func TestCredentialsFetchedOnce(t *testing.T) {
	t.Parallel()

	source := &fakeSource{gate: make(chan struct{})}
	cache := New(fakeServices{value: source}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			groups, err := cache.Credentials(context.Background())
			if err != nil || len(groups) != 1 {
				t.Errorf("Credentials = %v, %v", groups, err)
			}
		}()
	}
	for source.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(source.gate)
	wg.Wait()

	if _, err := cache.Credentials(context.Background()); err != nil {
		t.Fatalf("cached Credentials: %v", err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestCredentialsFailureIsCached(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	fetchErr := errors.New("401")
	source.setErr(fetchErr)
	var reported []error
	cache := New(fakeServices{value: source}, func(err error) { reported = append(reported, err) })

	if _, err := cache.Credentials(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v, want %v", err, fetchErr)
	}

	source.setErr(nil)
	for i := 0; i < 3; i++ {
		groups, err := cache.Credentials(context.Background())
		if !errors.Is(err, fetchErr) || groups != nil {
			t.Fatalf("Credentials #%d = %v, %v, want %v", i, groups, err, fetchErr)
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if len(reported) != 1 || !errors.Is(reported[0], fetchErr) {
		t.Fatalf("reported = %v, want one %v", reported, fetchErr)
	}
}

func TestCredentialsConcurrentFailureSharesOneRequest(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("503")
	source := &fakeSource{gate: make(chan struct{}), err: fetchErr}
	var reports atomic.Int32
	cache := New(fakeServices{value: source}, func(error) { reports.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Credentials(context.Background()); !errors.Is(err, fetchErr) {
				t.Errorf("err = %v, want %v", err, fetchErr)
			}
		}()
	}
	for source.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(source.gate)
	wg.Wait()

	if _, err := cache.Credentials(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("later err = %v, want %v", err, fetchErr)
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if got := reports.Load(); got != 1 {
		t.Fatalf("reports = %d, want 1", got)
	}
}

func TestCredentialsResolutionErrors(t *testing.T) {
	t.Parallel()

	resolveErr := errors.New("module missing")
	if _, err := New(fakeServices{err: resolveErr}, nil).Credentials(context.Background()); !errors.Is(err, resolveErr) {
		t.Fatalf("err = %v, want %v", err, resolveErr)
	}
	if _, err := New(fakeServices{value: "not a source"}, nil).Credentials(context.Background()); err == nil {
		t.Fatal("expected type error")
	}
}

func TestCredentialsCallerCancel(t *testing.T) {
	t.Parallel()

	source := &fakeSource{gate: make(chan struct{})}
	cache := New(fakeServices{value: source}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.Credentials(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(source.gate)
}
