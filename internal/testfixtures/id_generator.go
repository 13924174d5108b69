package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces deterministic identifiers. By default it yields
// "<prefix>-<n>"; with a UUID namespace it yields name based UUIDs so tests
// can exercise code paths that expect UUID shaped ids.
type IDGenerator struct {
	mu        sync.Mutex
	prefix    string
	counter   uint64
	namespace *uuid.UUID
}

// NewIDGenerator returns a generator with prefix, or "id" when empty.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator returns a generator of version 5 UUIDs derived from
// namespace and a counter.
func NewUUIDGenerator(namespace uuid.UUID) *IDGenerator {
	g := NewIDGenerator("")
	g.namespace = &namespace
	return g
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	name := fmt.Sprintf("%s-%d", g.prefix, g.counter)
	if g.namespace != nil {
		return uuid.NewSHA1(*g.namespace, []byte(name)).String()
	}
	return name
}

// NextFunc exposes Next for injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
