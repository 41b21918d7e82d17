package wire

import "encoding/binary"

func init() {
	registerOption(OptionRelayMessage, MultiplicityOne, decodeRelayMessageOption)
	registerOption(OptionInterfaceID, MultiplicityOne, decodeInterfaceID)
	registerOption(OptionRemoteID, MultiplicityOne, decodeRemoteID)
	registerOption(OptionSubscriberID, MultiplicityOne, decodeSubscriberID)
	registerOption(OptionClientLinkLayerAddr, MultiplicityOne, decodeClientLinkLayerAddr)
}

// OptRelayMessage carries the next message in a relay chain: another
// RelayMessage, or the innermost client/server Message, per RFC 8415
// section 21.10.
type OptRelayMessage struct{ Message DHCPv6 }

func (o *OptRelayMessage) Code() OptionCode { return OptionRelayMessage }
func (o *OptRelayMessage) ToBytes() []byte  { return o.Message.ToBytes() }

func decodeRelayMessageOption(body []byte, depth int) (Option, error) {
	if depth > RecursionLimit {
		return nil, codecErr(ErrKindRecursionLimit, "relay-message option nesting too deep")
	}
	if len(body) < 1 {
		return nil, codecErr(ErrKindTruncated, "relay-message option empty")
	}
	t := MessageType(body[0])
	var inner DHCPv6
	var err error
	switch t {
	case MessageTypeRelayForw, MessageTypeRelayRepl:
		inner, err = decodeRelayMessage(body, depth)
	default:
		inner, err = decodeMessage(body, depth)
	}
	if err != nil {
		return nil, err
	}
	return &OptRelayMessage{Message: inner}, nil
}

// OptInterfaceID identifies the relay's ingress interface, per RFC
// 8415 section 21.18. Opaque to the server beyond round-tripping it
// back in the matching Relay-Reply.
type OptInterfaceID struct{ Data []byte }

func (o *OptInterfaceID) Code() OptionCode { return OptionInterfaceID }
func (o *OptInterfaceID) ToBytes() []byte  { return o.Data }

func decodeInterfaceID(body []byte, _ int) (Option, error) {
	return &OptInterfaceID{Data: append([]byte(nil), body...)}, nil
}

// OptRemoteID carries an enterprise number plus opaque remote
// identifier, inserted by a relay agent, per RFC 4649.
type OptRemoteID struct {
	EnterpriseNumber uint32
	RemoteID         []byte
}

func (o *OptRemoteID) Code() OptionCode { return OptionRemoteID }
func (o *OptRemoteID) ToBytes() []byte {
	body := make([]byte, 4+len(o.RemoteID))
	binary.BigEndian.PutUint32(body[0:4], o.EnterpriseNumber)
	copy(body[4:], o.RemoteID)
	return body
}

func decodeRemoteID(body []byte, _ int) (Option, error) {
	if len(body) < 4 {
		return nil, codecErr(ErrKindTruncated, "remote-id truncated")
	}
	return &OptRemoteID{
		EnterpriseNumber: binary.BigEndian.Uint32(body[0:4]),
		RemoteID:         append([]byte(nil), body[4:]...),
	}, nil
}

// OptSubscriberID carries an opaque subscriber identifier inserted by
// a relay agent, per RFC 4580.
type OptSubscriberID struct{ Data []byte }

func (o *OptSubscriberID) Code() OptionCode { return OptionSubscriberID }
func (o *OptSubscriberID) ToBytes() []byte  { return o.Data }

func decodeSubscriberID(body []byte, _ int) (Option, error) {
	return &OptSubscriberID{Data: append([]byte(nil), body...)}, nil
}

// OptClientLinkLayerAddr carries the client's link-layer address and
// type, inserted by a relay agent, per RFC 6939.
type OptClientLinkLayerAddr struct {
	LinkLayerType uint16
	LinkLayer     []byte
}

func (o *OptClientLinkLayerAddr) Code() OptionCode { return OptionClientLinkLayerAddr }
func (o *OptClientLinkLayerAddr) ToBytes() []byte {
	body := make([]byte, 2+len(o.LinkLayer))
	binary.BigEndian.PutUint16(body[0:2], o.LinkLayerType)
	copy(body[2:], o.LinkLayer)
	return body
}

func decodeClientLinkLayerAddr(body []byte, _ int) (Option, error) {
	if len(body) < 2 {
		return nil, codecErr(ErrKindTruncated, "client-linklayer-addr truncated")
	}
	return &OptClientLinkLayerAddr{
		LinkLayerType: binary.BigEndian.Uint16(body[0:2]),
		LinkLayer:     append([]byte(nil), body[2:]...),
	}, nil
}

// RemoteID returns the decoded remote-id option from a relay message,
// or nil.
func (r *RelayMessage) RemoteID() *OptRemoteID {
	if opt, ok := r.Options.Get(OptionRemoteID).(*OptRemoteID); ok {
		return opt
	}
	return nil
}

// SubscriberID returns the decoded subscriber-id option from a relay
// message, or nil.
func (r *RelayMessage) SubscriberID() *OptSubscriberID {
	if opt, ok := r.Options.Get(OptionSubscriberID).(*OptSubscriberID); ok {
		return opt
	}
	return nil
}

// InterfaceID returns the decoded interface-id option, or nil.
func (r *RelayMessage) InterfaceID() *OptInterfaceID {
	if opt, ok := r.Options.Get(OptionInterfaceID).(*OptInterfaceID); ok {
		return opt
	}
	return nil
}
