package wire

import "fmt"

// MessageType is the 1-byte msg-type tag, per RFC 8415 section 7.3 and
// the leasequery/bulk-leasequery extensions (RFC 5007, RFC 5460).
type MessageType uint8

const (
	MessageTypeSolicit            MessageType = 1
	MessageTypeAdvertise          MessageType = 2
	MessageTypeRequest            MessageType = 3
	MessageTypeConfirm            MessageType = 4
	MessageTypeRenew              MessageType = 5
	MessageTypeRebind             MessageType = 6
	MessageTypeReply              MessageType = 7
	MessageTypeRelease            MessageType = 8
	MessageTypeDecline            MessageType = 9
	MessageTypeReconfigure        MessageType = 10
	MessageTypeInformationRequest MessageType = 11
	MessageTypeRelayForw          MessageType = 12
	MessageTypeRelayRepl          MessageType = 13
	MessageTypeLeasequery         MessageType = 14
	MessageTypeLeasequeryReply    MessageType = 15
	MessageTypeLeasequeryDone     MessageType = 16
	MessageTypeLeasequeryData     MessageType = 17
)

var knownMessageTypes = map[MessageType]bool{
	MessageTypeSolicit: true, MessageTypeAdvertise: true, MessageTypeRequest: true,
	MessageTypeConfirm: true, MessageTypeRenew: true, MessageTypeRebind: true,
	MessageTypeReply: true, MessageTypeRelease: true, MessageTypeDecline: true,
	MessageTypeReconfigure: true, MessageTypeInformationRequest: true,
	MessageTypeRelayForw: true, MessageTypeRelayRepl: true,
	MessageTypeLeasequery: true, MessageTypeLeasequeryReply: true,
	MessageTypeLeasequeryDone: true, MessageTypeLeasequeryData: true,
}

// clientOnlyMessageTypes are message types a server sends to a client
// and therefore must never arrive at the server's listener socket as
// the outer datagram type. They are dropped silently with a counter
// rather than treated as a codec error, since the bytes themselves
// are well-formed.
var clientOnlyMessageTypes = map[MessageType]bool{
	MessageTypeAdvertise:       true,
	MessageTypeReply:           true,
	MessageTypeLeasequeryReply: true,
	MessageTypeLeasequeryDone:  true,
	MessageTypeLeasequeryData:  true,
}

// IsClientOnly reports whether t is a message type the server should
// never receive as a top-level inbound datagram.
func IsClientOnly(t MessageType) bool { return clientOnlyMessageTypes[t] }

var messageTypeNames = map[MessageType]string{
	MessageTypeSolicit: "solicit", MessageTypeAdvertise: "advertise",
	MessageTypeRequest: "request", MessageTypeConfirm: "confirm",
	MessageTypeRenew: "renew", MessageTypeRebind: "rebind",
	MessageTypeReply: "reply", MessageTypeRelease: "release",
	MessageTypeDecline: "decline", MessageTypeReconfigure: "reconfigure",
	MessageTypeInformationRequest: "information-request",
	MessageTypeRelayForw:          "relay-forw",
	MessageTypeRelayRepl:          "relay-repl",
	MessageTypeLeasequery:         "leasequery",
	MessageTypeLeasequeryReply:    "leasequery-reply",
	MessageTypeLeasequeryDone:     "leasequery-done",
	MessageTypeLeasequeryData:     "leasequery-data",
}

// String renders a message type by name for logging and statistics,
// falling back to its numeric value for anything outside the known set.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// DHCPv6 is implemented by both Message and RelayMessage: the two
// shapes a decoded datagram can take.
type DHCPv6 interface {
	// Type returns the leading message-type byte.
	Type() MessageType
	// ToBytes re-encodes the full datagram.
	ToBytes() []byte
	// IsRelay reports whether this is a RelayMessage.
	IsRelay() bool
}

// Message is a client/server DHCPv6 message: transaction-id plus an
// option container (RFC 8415 section 8).
type Message struct {
	MessageType   MessageType
	TransactionID [3]byte
	Options       Options
}

func (m *Message) Type() MessageType { return m.MessageType }
func (m *Message) IsRelay() bool     { return false }

func (m *Message) ToBytes() []byte {
	out := make([]byte, 4)
	out[0] = byte(m.MessageType)
	copy(out[1:4], m.TransactionID[:])
	return append(out, m.Options.ToBytes()...)
}

func decodeMessage(data []byte, depth int) (*Message, error) {
	if len(data) < 4 {
		return nil, codecErr(ErrKindTruncated, "message header truncated")
	}
	m := &Message{MessageType: MessageType(data[0])}
	copy(m.TransactionID[:], data[1:4])
	opts, err := decodeOptions(data[4:], depth)
	if err != nil {
		return nil, err
	}
	m.Options = opts
	return m, nil
}

// RelayMessage is a relay-forward/relay-reply wrapper, per RFC 8415
// section 9. Its Options always carries exactly one OptRelayMessage
// sub-option containing the next message in the chain: another
// RelayMessage, or finally a client/server Message.
type RelayMessage struct {
	MessageType MessageType // MessageTypeRelayForw or MessageTypeRelayRepl
	HopCount    uint8
	LinkAddr    [16]byte
	PeerAddr    [16]byte
	Options     Options
}

func (r *RelayMessage) Type() MessageType { return r.MessageType }
func (r *RelayMessage) IsRelay() bool     { return true }

func (r *RelayMessage) ToBytes() []byte {
	out := make([]byte, 34)
	out[0] = byte(r.MessageType)
	out[1] = r.HopCount
	copy(out[2:18], r.LinkAddr[:])
	copy(out[18:34], r.PeerAddr[:])
	return append(out, r.Options.ToBytes()...)
}

func decodeRelayMessage(data []byte, depth int) (*RelayMessage, error) {
	if len(data) < 34 {
		return nil, codecErr(ErrKindTruncated, "relay message header truncated")
	}
	r := &RelayMessage{MessageType: MessageType(data[0]), HopCount: data[1]}
	copy(r.LinkAddr[:], data[2:18])
	copy(r.PeerAddr[:], data[18:34])
	opts, err := decodeOptions(data[34:], depth)
	if err != nil {
		return nil, err
	}
	r.Options = opts
	return r, nil
}

// DecodeDHCPv6 is the single entry point for parsing a received
// datagram, dispatching on the leading message-type byte. It never
// panics; every structural problem surfaces as a *CodecError.
func DecodeDHCPv6(data []byte) (DHCPv6, error) {
	if len(data) < 1 {
		return nil, codecErr(ErrKindTruncated, "empty datagram")
	}
	t := MessageType(data[0])
	if !knownMessageTypes[t] {
		return nil, ErrUnknownMessageType
	}
	if t == MessageTypeRelayForw || t == MessageTypeRelayRepl {
		return decodeRelayMessage(data, 0)
	}
	return decodeMessage(data, 0)
}

// GetInnerMessage walks a relay chain down to the innermost
// client/server Message. It returns an error if the chain is
// malformed (missing relay-message sub-option) rather than panicking.
func GetInnerMessage(d DHCPv6) (*Message, error) {
	for {
		switch v := d.(type) {
		case *Message:
			return v, nil
		case *RelayMessage:
			inner, ok := v.Options.Get(OptionRelayMessage).(*OptRelayMessage)
			if !ok {
				return nil, codecErr(ErrKindTruncated, "relay message missing relay-message option")
			}
			d = inner.Message
		default:
			return nil, codecErr(ErrKindBadDiscriminant, "unrecognized DHCPv6 message shape")
		}
	}
}

// NewAdvertiseFromSolicit builds the Advertise skeleton answering a
// Solicit: same transaction-id, empty options left for handlers to
// populate.
func NewAdvertiseFromSolicit(solicit *Message) *Message {
	return &Message{MessageType: MessageTypeAdvertise, TransactionID: solicit.TransactionID}
}

// NewReplyFromMessage builds the Reply skeleton answering any
// client request that expects a Reply (Request, Renew, Rebind,
// Release, Decline, Confirm, Information-Request).
func NewReplyFromMessage(req *Message) *Message {
	return &Message{MessageType: MessageTypeReply, TransactionID: req.TransactionID}
}

// NewRelayReplFromRelayForw builds the Relay-Reply wrapper answering a
// Relay-Forward, copying link-addr/peer-addr/hop-count and wrapping
// inner as its relay-message sub-option, per RFC 8415 section 20.1.3.
func NewRelayReplFromRelayForw(forw *RelayMessage, inner DHCPv6) *RelayMessage {
	r := &RelayMessage{
		MessageType: MessageTypeRelayRepl,
		HopCount:    forw.HopCount,
		LinkAddr:    forw.LinkAddr,
		PeerAddr:    forw.PeerAddr,
	}
	if ifaceID, ok := forw.Options.Get(OptionInterfaceID).(*OptInterfaceID); ok {
		r.Options.Add(ifaceID)
	}
	r.Options.Add(&OptRelayMessage{Message: inner})
	return r
}

// Validate walks a message's IA containers and rejects encode-time
// lifetime violations (preferred > valid) introduced by a misbehaving
// handler; decode-time violations are instead carried as Partial, per
// decodeIAAddr/decodeIANA.
func (m *Message) Validate() error {
	for _, ia := range m.Options.IANAs() {
		for _, addr := range ia.Options.GetAll(OptionIAAddr) {
			a := addr.(*OptIAAddress)
			if invalidLifetimes(a.PreferredLifetime, a.ValidLifetime) {
				return codecErr(ErrKindInvalidLifetimes, "encode: IAAddr preferred-lifetime exceeds valid-lifetime")
			}
		}
	}
	for _, pd := range m.Options.IAPD() {
		for _, p := range pd.Options.Prefixes() {
			if invalidLifetimes(p.PreferredLifetime, p.ValidLifetime) {
				return codecErr(ErrKindInvalidLifetimes, "encode: IAPrefix preferred-lifetime exceeds valid-lifetime")
			}
		}
	}
	return nil
}

// Encode validates then serializes m, the only path response
// construction should use to produce wire bytes.
func (m *Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m.ToBytes(), nil
}
