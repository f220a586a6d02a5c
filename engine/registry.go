package engine

import (
	"fmt"

	"github.com/zhangyunhao116/skipmap"
)

// DefaultName is the engine used when a configuration names none.
const DefaultName = "mdbx"

var registry = skipmap.New[string, Engine]()

// Register makes an engine available under name. Registering the same name
// twice panics, as it does for database/sql drivers.
func Register(name string, e Engine) {
	if e == nil {
		panic("engine: Register engine is nil")
	}
	if _, loaded := registry.LoadOrStore(name, e); loaded {
		panic(fmt.Sprintf("engine: Register called twice for %q", name))
	}
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, bool) {
	return registry.Load(name)
}

// Names returns the registered engine names in sorted order.
func Names() []string {
	names := make([]string, 0, registry.Len())
	registry.Range(func(name string, _ Engine) bool {
		names = append(names, name)
		return true
	})
	return names
}
