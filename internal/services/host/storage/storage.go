package storage

import (
	"context"
	"time"
)

// LoadOutcome is the result of one module load attempt.
type LoadOutcome string

const (
	// LoadOutcomeLoaded means the module became ready.
	LoadOutcomeLoaded LoadOutcome = "loaded"
	// LoadOutcomeFailed means the fetch, execution or a component hook failed.
	LoadOutcomeFailed LoadOutcome = "failed"
)

// ModuleLoad records one module load attempt.
type ModuleLoad struct {
	ID         string
	Module     string
	Outcome    LoadOutcome
	Error      string
	Components int
	Duration   time.Duration
	TraceID    string
	SpanID     string
	LoadedAt   time.Time
}

// ModuleLoadStore persists module load attempts.
type ModuleLoadStore interface {
	RecordModuleLoad(ctx context.Context, record ModuleLoad) error
	ListModuleLoads(ctx context.Context, module string, limit int) ([]ModuleLoad, error)
}
