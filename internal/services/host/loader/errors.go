package loader

import (
	"errors"
	"fmt"
)

// ErrLoad reports a module that could not be made ready.
var ErrLoad = errors.New("module load failed")

// Load stages reported by LoadError.
const (
	StageFetch   = "fetch"
	StageExecute = "execute"
	StageInit    = "init"
)

// LoadError describes a failed module load.
type LoadError struct {
	Module string
	Stage  string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %s: %s: %v", e.Module, e.Stage, e.Err)
}

// Unwrap matches both ErrLoad and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}
