package wire

import (
	"encoding/binary"
	"net"
)

// LQQueryType is the one-byte discriminant of an LQ-QUERY option, per
// RFC 5007 section 4.1.1 and the by-remote-id/by-link-layer-address
// extensions in RFC 5460.
type LQQueryType uint8

const (
	LQQueryByAddress   LQQueryType = 1
	LQQueryByClientID  LQQueryType = 2
	LQQueryByRemoteID  LQQueryType = 3
	LQQueryByLinkLayer LQQueryType = 4
)

func init() {
	registerOption(OptionLQQuery, MultiplicityOne, decodeLQQuery)
	registerOption(OptionClientData, MultiplicityOne, decodeClientData)
	registerOption(OptionCLTTime, MultiplicityOne, decodeCLTTime)
	registerOption(OptionLQRelayData, MultiplicityOne, decodeLQRelayData)
	registerOption(OptionLQClientLink, MultiplicityOne, decodeLQClientLink)
}

// OptLQQuery is the LQ-QUERY option carried in a Leasequery request,
// RFC 5007 section 4.1.1.
type OptLQQuery struct {
	QueryType    LQQueryType
	LinkAddress  net.IP
	QueryOptions Options
}

func (o *OptLQQuery) Code() OptionCode { return OptionLQQuery }
func (o *OptLQQuery) ToBytes() []byte {
	body := make([]byte, 17)
	body[0] = byte(o.QueryType)
	copy(body[1:17], o.LinkAddress.To16())
	return append(body, o.QueryOptions.ToBytes()...)
}

func decodeLQQuery(body []byte, depth int) (Option, error) {
	if len(body) < 17 {
		return nil, codecErr(ErrKindTruncated, "lq-query truncated")
	}
	opts, err := decodeOptions(body[17:], depth)
	if err != nil {
		return nil, err
	}
	return &OptLQQuery{
		QueryType:    LQQueryType(body[0]),
		LinkAddress:  append(net.IP(nil), body[1:17]...),
		QueryOptions: opts,
	}, nil
}

// OptClientData wraps the per-client option set returned by a
// leasequery reply (IAADDR/IAPREFIX, client-id, CLT-TIME, ...), per
// RFC 5007 section 4.2.1.
type OptClientData struct{ Options Options }

func (o *OptClientData) Code() OptionCode { return OptionClientData }
func (o *OptClientData) ToBytes() []byte  { return o.Options.ToBytes() }

func decodeClientData(body []byte, depth int) (Option, error) {
	opts, err := decodeOptions(body, depth)
	if err != nil {
		return nil, err
	}
	return &OptClientData{Options: opts}, nil
}

// OptCLTTime is CLT_TIME: seconds elapsed since the lease was last
// confirmed with the client, RFC 5007 section 4.2.2.
type OptCLTTime struct{ Seconds uint32 }

func (o *OptCLTTime) Code() OptionCode { return OptionCLTTime }
func (o *OptCLTTime) ToBytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, o.Seconds)
	return b
}

func decodeCLTTime(body []byte, _ int) (Option, error) {
	if len(body) != 4 {
		return nil, codecErr(ErrKindBadLength, "clt-time must be 4 bytes")
	}
	return &OptCLTTime{Seconds: binary.BigEndian.Uint32(body)}, nil
}

// OptLQRelayData carries the peer address and a verbatim copy of the
// relay message the query's client data passed through, RFC 5007
// section 4.2.3. The inner relay message is preserved as opaque bytes
// rather than recursively decoded: it is a record of what was seen on
// the wire, not a message to be re-dispatched.
type OptLQRelayData struct {
	PeerAddress  net.IP
	RelayMessage []byte
}

func (o *OptLQRelayData) Code() OptionCode { return OptionLQRelayData }
func (o *OptLQRelayData) ToBytes() []byte {
	body := make([]byte, 16)
	copy(body, o.PeerAddress.To16())
	return append(body, o.RelayMessage...)
}

func decodeLQRelayData(body []byte, _ int) (Option, error) {
	if len(body) < 16 {
		return nil, codecErr(ErrKindTruncated, "lq-relay-data truncated")
	}
	return &OptLQRelayData{
		PeerAddress:  append(net.IP(nil), body[0:16]...),
		RelayMessage: append([]byte(nil), body[16:]...),
	}, nil
}

// OptLQClientLink lists the IPv6 addresses of the link the client is
// attached to, RFC 5460 section 5.4.
type OptLQClientLink struct{ Addresses []net.IP }

func (o *OptLQClientLink) Code() OptionCode { return OptionLQClientLink }
func (o *OptLQClientLink) ToBytes() []byte {
	buf := make([]byte, 0, 16*len(o.Addresses))
	for _, ip := range o.Addresses {
		buf = append(buf, ip.To16()...)
	}
	return buf
}

func decodeLQClientLink(body []byte, _ int) (Option, error) {
	if len(body)%16 != 0 {
		return nil, codecErr(ErrKindBadLength, "lq-client-link length not a multiple of 16")
	}
	o := &OptLQClientLink{}
	for i := 0; i+16 <= len(body); i += 16 {
		o.Addresses = append(o.Addresses, append(net.IP(nil), body[i:i+16]...))
	}
	return o, nil
}

// EncodeBulkFrame wraps a Leasequery-Reply/Leasequery-Data/
// Leasequery-Done message with the 2-byte length prefix bulk
// leasequery uses over its dedicated TCP connection, RFC 5460
// section 4.
func EncodeBulkFrame(msg DHCPv6) []byte {
	body := msg.ToBytes()
	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(body)))
	copy(out[2:], body)
	return out
}

// DecodeBulkFrame consumes one length-prefixed message from the front
// of a bulk leasequery TCP stream buffer, returning the decoded
// message and the number of bytes consumed. It returns (nil, 0, nil)
// when buf does not yet hold a complete frame, so callers can keep
// reading from the connection.
func DecodeBulkFrame(buf []byte) (DHCPv6, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < 2+n {
		return nil, 0, nil
	}
	msg, err := DecodeDHCPv6(buf[2 : 2+n])
	if err != nil {
		return nil, 0, err
	}
	return msg, 2 + n, nil
}
