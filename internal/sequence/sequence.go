// Package sequence hands out monotonically increasing numeric ids per
// named sequence. Every implementation uses an atomic increment-and-fetch.
package sequence

import (
	"context"
	"sync"
)

// Well-known sequence names.
const (
	Tenant   = "tenant"
	LogEvent = "logEvent"
	Alert    = "alert"
	User     = "user"
)

// Allocator returns the next value of a named sequence. Each call returns a
// value strictly greater than every earlier value for that name.
type Allocator interface {
	Next(ctx context.Context, name string) (int64, error)
}

// MemoryAllocator is a process-local Allocator.
type MemoryAllocator struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{values: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(_ context.Context, name string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[name]++
	return a.values[name], nil
}
