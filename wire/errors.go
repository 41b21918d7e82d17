package wire

import "fmt"

// CodecErrorKind classifies the ways decoding or encoding a DHCPv6
// message can fail.
type CodecErrorKind int

const (
	// ErrKindTruncated means fewer bytes were available than a length
	// field promised.
	ErrKindTruncated CodecErrorKind = iota
	// ErrKindBadLength means an option or container declared a length
	// that disagrees with its own encoding rules.
	ErrKindBadLength
	// ErrKindBadDiscriminant means an enum-like field (DUID type,
	// status code, address family) held a value its decoder doesn't
	// understand structurally (not just "unknown", but malformed).
	ErrKindBadDiscriminant
	// ErrKindRecursionLimit means nested containers (relay messages,
	// IA_*, vendor options) exceeded the maximum nesting depth.
	ErrKindRecursionLimit
	// ErrKindDuplicateSingleton means an option declared multiplicity
	// 0..1 appeared more than once in the same container.
	ErrKindDuplicateSingleton
	// ErrKindUnknownMessageType means the message type tag is not one
	// of the closed set this codec understands.
	ErrKindUnknownMessageType
	// ErrKindInvalidLifetimes means preferred-lifetime > valid-lifetime
	// within an IA address or prefix.
	ErrKindInvalidLifetimes
)

// CodecError is returned by every decode/encode failure in wire.
type CodecError struct {
	Kind    CodecErrorKind
	Context string
	Err     error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dhcpv6 codec: %s: %v", e.Context, e.Err)
	}
	return fmt.Sprintf("dhcpv6 codec: %s", e.Context)
}

func (e *CodecError) Unwrap() error { return e.Err }

func codecErr(kind CodecErrorKind, context string) error {
	return &CodecError{Kind: kind, Context: context}
}

func codecErrf(kind CodecErrorKind, context string, err error) error {
	return &CodecError{Kind: kind, Context: context, Err: err}
}

// ErrUnknownMessageType is returned (wrapped in a *CodecError) when the
// leading type byte of a datagram does not name a message kind this
// codec's registry knows about.
var ErrUnknownMessageType = codecErr(ErrKindUnknownMessageType, "unknown message type")

// RecursionLimit is the maximum nesting depth for recursive
// containers (relay-message, IA_*, vendor-opts); deeper input fails
// decoding rather than consuming unbounded stack.
const RecursionLimit = 32
