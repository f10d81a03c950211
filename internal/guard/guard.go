// Package guard provides a per-entity mutual-exclusion wrapper with scoped
// acquisition, used to protect the snapshot tree's per-user and per-asset
// sub-trees (spec §4.4). Guards are non-reentrant; callers must respect the
// acquisition orderings documented in spec §5: engine before asset, asset
// before user, engine before order registry.
package guard

import (
	"encoding/json"
	"sync"
)

// sentinelKey tags a guarded sub-tree in its JSON encoding so that on load
// the wrapper can be reconstructed around the inner value (spec §4.3).
const sentinelKey = "__GUARD__"

// Guard wraps a value of type T with a mutex. The only exposed mutating
// operation is With, a scoped acquisition that releases the lock when the
// callback returns. Peek is an unsynchronized read intended solely for
// snapshot serialization and invariant inspection (spec §4.4).
type Guard[T any] struct {
	mu    sync.Mutex
	value T
}

// New wraps v in a Guard.
func New[T any](v T) *Guard[T] {
	return &Guard[T]{value: v}
}

// With acquires the guard, calls fn with a mutable pointer to the guarded
// value, then releases the guard. fn must not retain the pointer past
// return.
func (g *Guard[T]) With(fn func(v *T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// WithE is the With variant for callbacks that can fail.
func (g *Guard[T]) WithE(fn func(v *T) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.value)
}

// Peek returns an unsynchronized pointer to the guarded value. Only safe
// for snapshot serialization (which takes the guard itself, see MarshalJSON)
// or single-threaded startup/shutdown code.
func (g *Guard[T]) Peek() *T {
	return &g.value
}

// guardedEnvelope is the on-disk shape of a guarded sub-tree.
type guardedEnvelope[T any] struct {
	Guard bool `json:"__GUARD__"`
	Value T    `json:"value"`
}

// MarshalJSON takes the guard (serialization must not race a concurrent
// mutation of the sub-tree) and emits the __GUARD__-tagged envelope.
func (g *Guard[T]) MarshalJSON() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Marshal(guardedEnvelope[T]{Guard: true, Value: g.value})
}

// UnmarshalJSON reconstructs the guard wrapper around the decoded value.
// It accepts both the tagged envelope and a bare value, so snapshots
// written before a sub-tree became guarded still load.
func (g *Guard[T]) UnmarshalJSON(data []byte) error {
	var env guardedEnvelope[T]
	if err := json.Unmarshal(data, &env); err == nil && env.Guard {
		g.value = env.Value
		return nil
	}
	var bare T
	if err := json.Unmarshal(data, &bare); err != nil {
		return err
	}
	g.value = bare
	return nil
}
