// internal/engine/registry.go
package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an engine instance from validated construction
// arguments.
type Factory func(cfg Config) (Engine, error)

type registryEntry struct {
	meta    Meta
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registryEntry)

	builtinsOnce sync.Once
)

// Register adds a game to the registry. Registration happens explicitly
// at process start (see RegisterBuiltins) so the available-game set is a
// visible, testable artifact rather than a scan result. Registering the
// same name twice panics: that is a programming error, not a runtime
// condition.
func Register(meta Meta, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[meta.Name]; exists {
		panic(fmt.Sprintf("engine %q registered twice", meta.Name))
	}
	registry[meta.Name] = registryEntry{meta: meta, factory: factory}
}

// RegisterBuiltins registers every game shipped with the server. Safe to
// call from multiple tests.
func RegisterBuiltins() {
	builtinsOnce.Do(func() {
		Register(tictactoeMeta(), newTicTacToe)
		Register(clobberMeta(), newClobber)
		Register(checkersMeta(), newCheckers)
	})
}

// Names returns the sorted list of registered game names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MetaFor returns the static metadata for a registered game.
func MetaFor(name string) (Meta, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	entry, ok := registry[name]
	return entry.meta, ok
}

// New instantiates an engine by game-type name. Unknown names return
// ErrUnknownGame, never a crash.
func New(name string, cfg Config) (Engine, error) {
	registryMu.RLock()
	entry, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, name)
	}
	return entry.factory(cfg)
}
