// Package allocators defines the Allocator interface the pool and
// prefix handlers use to hand out IPv6 addresses and delegated
// prefixes from fixed ranges.
package allocators

import (
	"errors"
	"net"
)

// ErrExhausted is returned when a pool has no more addresses/prefixes
// to hand out.
var ErrExhausted = errors.New("allocators: pool exhausted")

// ErrOutOfRange is returned when Allocate is asked to reserve a
// specific address/prefix that falls outside the pool's range.
var ErrOutOfRange = errors.New("allocators: requested value out of range")

// Allocator hands out addresses or prefixes from a fixed pool,
// tracking which ones are currently leased.
type Allocator interface {
	// Allocate reserves want if it is free and in range, or the next
	// free entry if want is the zero value (nil IP / nil mask).
	Allocate(want net.IPNet) (*net.IPNet, error)
	// Free releases a previously allocated entry back to the pool.
	Free(leased net.IPNet) error
	// Contains reports whether candidate falls inside this
	// allocator's configured range, irrespective of current leases.
	Contains(candidate net.IPNet) bool
}
