// Package session persists the signed-in credential and profile so they survive
// page reloads. A Store namespaces its keys per application and per browser scope
// and writes credential and profile together in one atomic batch.
package session

import (
	"context"
	"errors"
	"sort"
)

// ErrMediumClosed is returned by a medium used after Close.
var ErrMediumClosed = errors.New("session medium closed")

// Medium is the key-value backend a Store persists into.
type Medium interface {
	// Load returns the values of the given keys; absent keys are missing from the map.
	Load(ctx context.Context, keys ...string) (map[string]string, error)

	// Incr increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Apply runs the batch atomically and reports whether it was applied.
	Apply(ctx context.Context, b Batch) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Batch is a group of writes applied as one unit.
// When Guard is set the batch applies only if the counter at Guard equals Expect;
// a missing counter reads as zero. Every key in Match must hold its value and
// every key in Absent must be missing, else nothing is written.
type Batch struct {
	Guard  string
	Expect int64
	Match  map[string]string
	Absent []string
	Set    map[string]string
	Delete []string
	Incr   []string
}

// setKeys returns the keys of Set in a stable order
func (b Batch) setKeys() []string {
	return sortedKeys(b.Set)
}

func (b Batch) matchKeys() []string {
	return sortedKeys(b.Match)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
