// Package transaction holds the per-message state threaded through a
// single request/response exchange: the decoded request, the response
// under construction, handler marks, scratch key/value storage, and
// the disposition the pipeline has decided on so far.
package transaction

import (
	"context"
	"net"
	"time"

	"github.com/hexasix/dhcp6d/wire"
)

// Disposition is the outcome a transaction is heading toward.
// Handlers may only move a transaction from Continue to a more final
// state; a Drop is permanent and cannot be flipped back to a send.
type Disposition int

const (
	// Continue means no handler has decided the outcome yet; the
	// pipeline keeps running subsequent handlers.
	Continue Disposition = iota
	// Respond means a response should be sent once the post phase
	// finishes.
	Respond
	// Drop means the request is discarded with no reply, and no
	// further handler in the current phase should run.
	Drop
)

// Transaction is the mutable bundle passed to every handler's Handle
// call: the decoded request and the response under construction, plus
// the deadline and the per-request scratch space handlers use to pass
// facts to each other.
type Transaction struct {
	ctx context.Context

	// Request is the decoded inbound message (always the innermost
	// client message; relay wrapping is handled by the listener before
	// a Transaction is created, and reapplied by the built-in
	// post-handler that re-frames the response).
	Request *wire.Message

	// RelayChain holds the relay wrappers the request passed through,
	// outermost first, so the post-handler can rebuild the matching
	// chain of Relay-Reply messages around the response.
	RelayChain []*wire.RelayMessage

	// PeerAddr is the address the datagram containing Request arrived
	// from: the client's link-local address for a direct exchange, or
	// the innermost relay's peer-address for a relayed one.
	PeerAddr net.IP

	// InterfaceName is the receiving interface, used by filter.InterfaceMatch.
	InterfaceName string

	// Response is built up by handlers across the handle phase and
	// finalized by the post phase. Nil until a handler creates it
	// (typically via EnsureResponse).
	Response *wire.Message

	// Deadline bounds how long the pipeline may spend on this
	// transaction; worker.Pool checks it between phases and drops the
	// transaction once it has passed. ctx is not cancelled.
	Deadline time.Time

	marks       map[string]bool
	scratch     map[string]any
	disposition Disposition
}

// New creates a transaction for an inbound request.
func New(ctx context.Context, req *wire.Message, relayChain []*wire.RelayMessage, peerAddr net.IP, ifaceName string, deadline time.Time) *Transaction {
	return &Transaction{
		ctx:           ctx,
		Request:       req,
		RelayChain:    relayChain,
		PeerAddr:      peerAddr,
		InterfaceName: ifaceName,
		Deadline:      deadline,
		marks:         map[string]bool{},
		scratch:       map[string]any{},
	}
}

// Context returns the context the transaction was created with. It is
// not tied to Deadline; the listener creates every transaction with
// context.Background().
func (t *Transaction) Context() context.Context { return t.ctx }

// Mark sets a named boolean fact on the transaction, consumed by
// filter.MarkedWith. Marks are set by handlers (e.g. a "trusted relay"
// classifier) and read by filters gating later handlers in the same
// pipeline run.
func (t *Transaction) Mark(name string) { t.marks[name] = true }

// HasMark reports whether name was previously set via Mark.
func (t *Transaction) HasMark(name string) bool { return t.marks[name] }

// Set stores an arbitrary value in the transaction's scratch space,
// keyed by name, for handlers later in the pipeline to read via Get.
func (t *Transaction) Set(name string, value any) { t.scratch[name] = value }

// Get retrieves a scratch value previously stored with Set.
func (t *Transaction) Get(name string) (any, bool) {
	v, ok := t.scratch[name]
	return v, ok
}

// Disposition returns the current outcome.
func (t *Transaction) Disposition() Disposition { return t.disposition }

// SetDisposition moves the transaction toward a more final outcome.
// A transaction already marked Drop cannot be revived to Respond;
// that is a no-op here rather than an error, so a handler running
// after a drop has been decided simply finds its vote ignored.
func (t *Transaction) SetDisposition(d Disposition) {
	if t.disposition == Drop {
		return
	}
	t.disposition = d
}

// EnsureResponse lazily creates the appropriate skeleton response for
// this transaction's request type, if one hasn't been built yet.
// Client-only message types (Advertise, Reply, ...) never reach here;
// the listener drops them before a Transaction exists.
func (t *Transaction) EnsureResponse() *wire.Message {
	if t.Response != nil {
		return t.Response
	}
	switch t.Request.MessageType {
	case wire.MessageTypeSolicit:
		t.Response = wire.NewAdvertiseFromSolicit(t.Request)
	default:
		t.Response = wire.NewReplyFromMessage(t.Request)
	}
	return t.Response
}
