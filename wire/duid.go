package wire

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DUIDType is the 2-byte DUID type tag, per RFC 8415 section 11 and
// RFC 6355 (DUID-UUID).
type DUIDType uint16

const (
	DUIDTypeLLT  DUIDType = 1
	DUIDTypeEN   DUIDType = 2
	DUIDTypeLL   DUIDType = 3
	DUIDTypeUUID DUIDType = 4
)

// HardwareType is the ARP hardware type used by DUID-LLT/DUID-LL, per
// RFC 826's IANA registry. Only the handful of types this core's
// handlers construct are named; any other value round-trips fine as a
// plain integer.
type HardwareType uint16

const HardwareTypeEthernet HardwareType = 1

// DUID is a DHCP Unique Identifier, RFC 8415 section 11. DUIDOpaque
// preserves unknown types for round-trip fidelity.
type DUID interface {
	Type() DUIDType
	ToBytes() []byte
	Equal(other DUID) bool
}

func init() {
	registerDUID(DUIDTypeLLT, decodeDUIDLLT)
	registerDUID(DUIDTypeEN, decodeDUIDEN)
	registerDUID(DUIDTypeLL, decodeDUIDLL)
	registerDUID(DUIDTypeUUID, decodeDUIDUUID)
}

// DecodeDUID parses a full DUID, including its 2-byte type tag.
// Unknown types decode to DUIDOpaque rather than failing, since a
// DUID only ever needs byte-wise comparison and echoing.
func DecodeDUID(data []byte) (DUID, error) {
	if len(data) < 2 {
		return nil, codecErr(ErrKindTruncated, "DUID shorter than type tag")
	}
	t := DUIDType(binary.BigEndian.Uint16(data[0:2]))
	body := data[2:]

	decode, known := duidRegistry[t]
	if !known {
		return &DUIDOpaque{DUIDType: t, Data: append([]byte(nil), body...)}, nil
	}
	d, err := decode(body)
	if err != nil {
		return &DUIDOpaque{DUIDType: t, Data: append([]byte(nil), body...)}, nil
	}
	return d, nil
}

// duidEpoch is midnight (UTC) January 1, 2000, the DUID-LLT time base
// per RFC 8415 section 11.2.
const duidEpoch = 946684800

// ParseDUID builds a DUID from the human-readable "<type> <value>"
// configuration syntax shared by every config surface that names a
// DUID directly (the server-id handler's own duid field, and a
// DuidMatch filter's duid list): "ll <mac>", "llt <mac>" (timestamped
// with the current time), or "uuid <uuid>". Opaque DUID types cannot
// be named this way since there is no way to spell an arbitrary type
// tag in this syntax; configuring one requires the raw wire form.
func ParseDUID(s string) (DUID, error) {
	split := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(split) < 2 {
		return nil, fmt.Errorf("wire: ParseDUID: need a DUID type and value, got %q", s)
	}
	duidType, duidValue := strings.ToLower(split[0]), strings.TrimSpace(split[1])
	if duidValue == "" {
		return nil, fmt.Errorf("wire: ParseDUID: empty DUID value")
	}
	switch duidType {
	case "ll", "duid-ll", "duid_ll":
		hwaddr, err := net.ParseMAC(duidValue)
		if err != nil {
			return nil, err
		}
		return &DUIDLL{HWType: HardwareTypeEthernet, LinkLayer: hwaddr}, nil
	case "llt", "duid-llt", "duid_llt":
		hwaddr, err := net.ParseMAC(duidValue)
		if err != nil {
			return nil, err
		}
		return &DUIDLLT{HWType: HardwareTypeEthernet, Time: uint32(time.Now().Unix() - duidEpoch), LinkLayer: hwaddr}, nil
	case "uuid":
		parsed, err := uuid.Parse(duidValue)
		if err != nil {
			return nil, err
		}
		return &DUIDUUID{UUID: parsed}, nil
	default:
		return nil, fmt.Errorf("wire: ParseDUID: opaque DUID type %q not supported; use ll, llt, or uuid", duidType)
	}
}

func encodeDUIDHeader(t DUIDType, body []byte) []byte {
	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(t))
	copy(out[2:], body)
	return out
}

func duidEqual(a, b DUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() {
		return false
	}
	ab, bb := a.ToBytes(), b.ToBytes()
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}

// DUIDLLT is DUID-LLT (link-layer address plus time), RFC 8415 section
// 11.2.
type DUIDLLT struct {
	HWType    HardwareType
	Time      uint32 // seconds since midnight (UTC), Jan 1, 2000
	LinkLayer []byte
}

func (d *DUIDLLT) Type() DUIDType { return DUIDTypeLLT }
func (d *DUIDLLT) ToBytes() []byte {
	body := make([]byte, 6+len(d.LinkLayer))
	binary.BigEndian.PutUint16(body[0:2], uint16(d.HWType))
	binary.BigEndian.PutUint32(body[2:6], d.Time)
	copy(body[6:], d.LinkLayer)
	return encodeDUIDHeader(DUIDTypeLLT, body)
}
func (d *DUIDLLT) Equal(other DUID) bool { return duidEqual(d, other) }

func decodeDUIDLLT(body []byte) (DUID, error) {
	if len(body) < 6 {
		return nil, codecErr(ErrKindTruncated, "DUID-LLT truncated")
	}
	return &DUIDLLT{
		HWType:    HardwareType(binary.BigEndian.Uint16(body[0:2])),
		Time:      binary.BigEndian.Uint32(body[2:6]),
		LinkLayer: append([]byte(nil), body[6:]...),
	}, nil
}

// DUIDEN is DUID-EN (vendor enterprise number plus identifier), RFC
// 8415 section 11.3.
type DUIDEN struct {
	EnterpriseNumber uint32
	Identifier       []byte
}

func (d *DUIDEN) Type() DUIDType { return DUIDTypeEN }
func (d *DUIDEN) ToBytes() []byte {
	body := make([]byte, 4+len(d.Identifier))
	binary.BigEndian.PutUint32(body[0:4], d.EnterpriseNumber)
	copy(body[4:], d.Identifier)
	return encodeDUIDHeader(DUIDTypeEN, body)
}
func (d *DUIDEN) Equal(other DUID) bool { return duidEqual(d, other) }

func decodeDUIDEN(body []byte) (DUID, error) {
	if len(body) < 4 {
		return nil, codecErr(ErrKindTruncated, "DUID-EN truncated")
	}
	return &DUIDEN{
		EnterpriseNumber: binary.BigEndian.Uint32(body[0:4]),
		Identifier:       append([]byte(nil), body[4:]...),
	}, nil
}

// DUIDLL is DUID-LL (link-layer address only), RFC 8415 section 11.4.
type DUIDLL struct {
	HWType    HardwareType
	LinkLayer []byte
}

func (d *DUIDLL) Type() DUIDType { return DUIDTypeLL }
func (d *DUIDLL) ToBytes() []byte {
	body := make([]byte, 2+len(d.LinkLayer))
	binary.BigEndian.PutUint16(body[0:2], uint16(d.HWType))
	copy(body[2:], d.LinkLayer)
	return encodeDUIDHeader(DUIDTypeLL, body)
}
func (d *DUIDLL) Equal(other DUID) bool { return duidEqual(d, other) }

func decodeDUIDLL(body []byte) (DUID, error) {
	if len(body) < 2 {
		return nil, codecErr(ErrKindTruncated, "DUID-LL truncated")
	}
	return &DUIDLL{
		HWType:    HardwareType(binary.BigEndian.Uint16(body[0:2])),
		LinkLayer: append([]byte(nil), body[2:]...),
	}, nil
}

// DUIDUUID is DUID-UUID, RFC 6355.
type DUIDUUID struct {
	UUID uuid.UUID
}

func (d *DUIDUUID) Type() DUIDType        { return DUIDTypeUUID }
func (d *DUIDUUID) ToBytes() []byte       { return encodeDUIDHeader(DUIDTypeUUID, d.UUID[:]) }
func (d *DUIDUUID) Equal(other DUID) bool { return duidEqual(d, other) }

func decodeDUIDUUID(body []byte) (DUID, error) {
	if len(body) != 16 {
		return nil, codecErr(ErrKindBadLength, "DUID-UUID must be 16 bytes")
	}
	id, err := uuid.FromBytes(body)
	if err != nil {
		return nil, codecErrf(ErrKindBadDiscriminant, "DUID-UUID", err)
	}
	return &DUIDUUID{UUID: id}, nil
}

// DUIDOpaque preserves an unrecognized DUID type verbatim.
type DUIDOpaque struct {
	DUIDType DUIDType
	Data     []byte
}

func (d *DUIDOpaque) Type() DUIDType        { return d.DUIDType }
func (d *DUIDOpaque) ToBytes() []byte       { return encodeDUIDHeader(d.DUIDType, d.Data) }
func (d *DUIDOpaque) Equal(other DUID) bool { return duidEqual(d, other) }

func (d *DUIDOpaque) String() string {
	return fmt.Sprintf("DUIDOpaque(type=%d, %d bytes)", d.DUIDType, len(d.Data))
}
