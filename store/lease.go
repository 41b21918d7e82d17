// Package store defines the lease persistence contract and a
// sqlite-backed implementation of it.
package store

import (
	"fmt"
	"net"
	"time"
)

// LeaseKind distinguishes what a Lease records, since the same table
// shape serves IA_NA/IA_TA addresses and IA_PD delegated prefixes.
type LeaseKind int

const (
	LeaseKindAddress LeaseKind = iota
	LeaseKindPrefix
)

// Lease is one allocated address or delegated prefix bound to a
// client DUID.
type Lease struct {
	Kind        LeaseKind
	DUID        []byte // raw encoded client DUID, used as the lookup key
	IAID        [4]byte
	IP          net.IP   // set for LeaseKindAddress
	Prefix      *net.IPNet // set for LeaseKindPrefix
	Preferred   time.Duration
	Valid       time.Duration
	ExpiresAt   time.Time
	Hostname    string
}

// Store is the lease persistence contract: Lookup and Save read and
// write a client's lease, Release removes it, and LookupAll and
// LookupByAddress serve leasequery.
// Implementations must be safe for concurrent use by the worker pool.
type Store interface {
	// Lookup returns the current lease for (duid, iaid, kind), or nil
	// if none exists.
	Lookup(duid []byte, iaid [4]byte, kind LeaseKind) (*Lease, error)
	// Save persists lease, replacing any prior lease for the same
	// (duid, iaid, kind).
	Save(lease *Lease) error
	// Release removes the lease for (duid, iaid, kind).
	Release(duid []byte, iaid [4]byte, kind LeaseKind) error
	// LookupAll returns every lease held by duid, across all IAIDs and
	// kinds, for leasequery's by-client-id query type.
	LookupAll(duid []byte) ([]*Lease, error)
	// LookupByAddress returns the lease binding ip, or nil if ip is
	// unleased, for leasequery's by-address query type.
	LookupByAddress(ip net.IP) (*Lease, error)
	// Close releases underlying resources (the database handle).
	Close() error
}

// Error wraps a store operation failure with the operation name so
// callers can log it usefully without string-matching.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }
