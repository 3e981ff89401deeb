package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harun/toolhost/pkg/tool"
)

// Factory constructs a fresh tool instance. It takes no arguments.
type Factory func() tool.Tool

// Builder turns a manifest entry of one kind into a factory. It returns an
// error when the entry's config cannot produce a working tool.
type Builder func(m Manifest) (Factory, error)

var (
	registryMu sync.RWMutex
	factories  []Factory
	builders   = make(map[string]Builder)
)

// Register adds a compiled-in tool factory. It is meant to be called from
// init functions and panics on a nil factory.
func Register(f Factory) {
	if f == nil {
		panic("catalog: Register called with nil factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	factories = append(factories, f)
}

// RegisterKind makes manifests of the given kind loadable. Registering the
// same kind twice panics.
func RegisterKind(kind string, b Builder) {
	if kind == "" || b == nil {
		panic("catalog: RegisterKind called with empty kind or nil builder")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := builders[kind]; dup {
		panic(fmt.Sprintf("catalog: kind %q registered twice", kind))
	}
	builders[kind] = b
}

// Compiled returns the factories registered with Register, in registration order.
func Compiled() []Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Factory, len(factories))
	copy(out, factories)
	return out
}

// Kinds returns the registered manifest kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(builders))
	for kind := range builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func builderFor(kind string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := builders[kind]
	return b, ok
}
