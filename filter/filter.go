// Package filter implements the predicate tree that scopes handlers
// to a subset of transactions: subnets, interfaces, client DUIDs,
// relay-inserted remote/subscriber IDs, and marks set by earlier
// handlers. Filters nest arbitrarily; app.go linearizes the tree into
// a flat, ordered handler list at load time rather than walking it on
// every packet.
package filter

import (
	"net"

	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// Filter decides whether a transaction falls within its scope.
type Filter interface {
	Match(t *transaction.Transaction) bool
}

// AlwaysMatch matches every transaction; the default scope for
// handlers with no explicit filter.
type AlwaysMatch struct{}

func (AlwaysMatch) Match(*transaction.Transaction) bool { return true }

// Not inverts another filter.
type Not struct{ Inner Filter }

func (f Not) Match(t *transaction.Transaction) bool { return !f.Inner.Match(t) }

// All matches when every inner filter matches (logical AND), used to
// compose a filter tree's nested scopes.
type All []Filter

func (f All) Match(t *transaction.Transaction) bool {
	for _, inner := range f {
		if !inner.Match(t) {
			return false
		}
	}
	return true
}

// Any matches when at least one inner filter matches (logical OR).
type Any []Filter

func (f Any) Match(t *transaction.Transaction) bool {
	for _, inner := range f {
		if inner.Match(t) {
			return true
		}
	}
	return false
}

// MarkedWith matches transactions carrying the named mark, set by an
// earlier handler via transaction.Mark; it lets one handler classify
// and a later, filtered handler act on the classification.
type MarkedWith struct{ Name string }

func (f MarkedWith) Match(t *transaction.Transaction) bool { return t.HasMark(f.Name) }

// InterfaceMatch matches transactions received on one of the named
// interfaces.
type InterfaceMatch struct{ Interfaces []string }

func (f InterfaceMatch) Match(t *transaction.Transaction) bool {
	for _, name := range f.Interfaces {
		if name == t.InterfaceName {
			return true
		}
	}
	return false
}

// SubnetMatch matches transactions whose peer address falls inside
// one of the configured subnets. The peer address is the client's
// actual link-local address for a direct exchange, or the innermost
// relay's peer-address field for a relayed one — whichever
// transaction.New was given, so this filter works identically in both
// cases without special-casing relays.
type SubnetMatch struct{ Subnets []*net.IPNet }

func (f SubnetMatch) Match(t *transaction.Transaction) bool {
	for _, subnet := range f.Subnets {
		if subnet.Contains(t.PeerAddr) {
			return true
		}
	}
	return false
}

// DuidMatch matches transactions whose client-id DUID equals one of
// the configured DUIDs.
type DuidMatch struct{ DUIDs []wire.DUID }

func (f DuidMatch) Match(t *transaction.Transaction) bool {
	cid := t.Request.Options.ClientID()
	if cid == nil {
		return false
	}
	for _, d := range f.DUIDs {
		if cid.DUID.Equal(d) {
			return true
		}
	}
	return false
}

// RemoteIdMatch matches transactions whose outermost relay inserted a
// remote-id option with one of the configured enterprise numbers.
type RemoteIdMatch struct{ EnterpriseNumbers []uint32 }

func (f RemoteIdMatch) Match(t *transaction.Transaction) bool {
	if len(t.RelayChain) == 0 {
		return false
	}
	remoteID := t.RelayChain[0].RemoteID()
	if remoteID == nil {
		return false
	}
	for _, n := range f.EnterpriseNumbers {
		if remoteID.EnterpriseNumber == n {
			return true
		}
	}
	return false
}

// SubscriberIdMatch matches transactions whose outermost relay
// inserted one of the configured subscriber-id values.
type SubscriberIdMatch struct{ SubscriberIDs [][]byte }

func (f SubscriberIdMatch) Match(t *transaction.Transaction) bool {
	if len(t.RelayChain) == 0 {
		return false
	}
	sub := t.RelayChain[0].SubscriberID()
	if sub == nil {
		return false
	}
	for _, want := range f.SubscriberIDs {
		if string(sub.Data) == string(want) {
			return true
		}
	}
	return false
}

// MessageTypeMatch matches transactions whose request is one of the
// configured message types, used to scope handlers like leasequery
// that only make sense for specific request kinds.
type MessageTypeMatch struct{ Types []wire.MessageType }

func (f MessageTypeMatch) Match(t *transaction.Transaction) bool {
	for _, mt := range f.Types {
		if mt == t.Request.MessageType {
			return true
		}
	}
	return false
}
