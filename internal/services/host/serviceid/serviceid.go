// Package serviceid parses container service identifiers.
package serviceid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid reports a malformed service identifier.
var ErrInvalid = errors.New("invalid service identifier")

// ID names a container service. Module is empty for bootstrap services.
type ID struct {
	Module  string
	Service string
}

// Parse validates raw as "service" or "module.service".
func Parse(raw string) (ID, error) {
	parts := strings.Split(raw, ".")
	for _, part := range parts {
		if part == "" {
			return ID{}, fmt.Errorf("%w: %q", ErrInvalid, raw)
		}
	}
	switch len(parts) {
	case 1:
		return ID{Service: parts[0]}, nil
	case 2:
		return ID{Module: parts[0], Service: parts[1]}, nil
	default:
		return ID{}, fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
}

// MustParse is Parse for identifiers known at compile time.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// Bootstrap returns the identifier of a bootstrap service.
func Bootstrap(service string) ID {
	return ID{Service: service}
}

// Qualified returns the identifier of a module service.
func Qualified(module, service string) ID {
	return ID{Module: module, Service: service}
}

// IsBootstrap reports whether the identifier has no owning module.
func (id ID) IsBootstrap() bool {
	return id.Module == ""
}

// String renders the identifier in its parsed form.
func (id ID) String() string {
	if id.Module == "" {
		return id.Service
	}
	return id.Module + "." + id.Service
}
