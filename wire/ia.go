package wire

import (
	"encoding/binary"
	"net"
)

func init() {
	registerOption(OptionClientID, MultiplicityOne, decodeClientID)
	registerOption(OptionServerID, MultiplicityOne, decodeServerID)
	registerOption(OptionIANA, MultiplicityMany, decodeIANA)
	registerOption(OptionIATA, MultiplicityMany, decodeIATA)
	registerOption(OptionIAAddr, MultiplicityMany, decodeIAAddr)
	registerOption(OptionIAPD, MultiplicityMany, decodeIAPD)
	registerOption(OptionIAPrefix, MultiplicityMany, decodeIAPrefix)
	registerOption(OptionStatusCode, MultiplicityOne, decodeStatusCode)
	registerOption(OptionOptionRequest, MultiplicityOne, decodeOptionRequest)
	registerOption(OptionPreference, MultiplicityOne, decodePreference)
	registerOption(OptionElapsedTime, MultiplicityOne, decodeElapsedTime)
	registerOption(OptionRapidCommit, MultiplicityOne, decodeRapidCommit)
	registerOption(OptionUnicast, MultiplicityOne, decodeUnicast)
	registerOption(OptionReconfMsg, MultiplicityOne, decodeReconfMsg)
	registerOption(OptionReconfAccept, MultiplicityOne, decodeReconfAccept)
	registerOption(OptionInfoRefreshTime, MultiplicityOne, decodeInfoRefreshTime)
	registerOption(OptionUserClass, MultiplicityOne, decodeUserClass)
	registerOption(OptionVendorClass, MultiplicityMany, decodeVendorClass)
	registerOption(OptionVendorOpts, MultiplicityMany, decodeVendorOpts)
}

// InfinityLifetime is the sentinel duration value meaning "infinite",
// per RFC 8415 section 7.7.
const InfinityLifetime uint32 = 0xffffffff

// --- Client/Server ID ---

// OptClientID wraps a DUID as the client-id option.
type OptClientID struct{ DUID DUID }

func (o *OptClientID) Code() OptionCode { return OptionClientID }
func (o *OptClientID) ToBytes() []byte  { return o.DUID.ToBytes() }

func decodeClientID(body []byte, _ int) (Option, error) {
	d, err := DecodeDUID(body)
	if err != nil {
		return nil, err
	}
	return &OptClientID{DUID: d}, nil
}

// OptServerID wraps a DUID as the server-id option.
type OptServerID struct{ DUID DUID }

func (o *OptServerID) Code() OptionCode { return OptionServerID }
func (o *OptServerID) ToBytes() []byte  { return o.DUID.ToBytes() }

func decodeServerID(body []byte, _ int) (Option, error) {
	d, err := DecodeDUID(body)
	if err != nil {
		return nil, err
	}
	return &OptServerID{DUID: d}, nil
}

// --- Status code ---

type StatusCode uint16

const (
	StatusSuccess       StatusCode = 0
	StatusUnspecFail    StatusCode = 1
	StatusNoAddrsAvail  StatusCode = 2
	StatusNoBinding     StatusCode = 3
	StatusNotOnLink     StatusCode = 4
	StatusUseMulticast  StatusCode = 5
	StatusNoPrefixAvail StatusCode = 6
	// Leasequery-specific status codes, RFC 5007 section 4.1.2.
	StatusMalformedQuery  StatusCode = 7
	StatusNotConfigured   StatusCode = 8
	StatusNotAllowed      StatusCode = 9
	StatusQueryTerminated StatusCode = 11
)

type OptStatusCode struct {
	StatusCode StatusCode
	Message    string
}

func (o *OptStatusCode) Code() OptionCode { return OptionStatusCode }
func (o *OptStatusCode) ToBytes() []byte {
	body := make([]byte, 2+len(o.Message))
	binary.BigEndian.PutUint16(body[0:2], uint16(o.StatusCode))
	copy(body[2:], o.Message)
	return body
}

func decodeStatusCode(body []byte, _ int) (Option, error) {
	if len(body) < 2 {
		return nil, codecErr(ErrKindTruncated, "status-code truncated")
	}
	return &OptStatusCode{
		StatusCode: StatusCode(binary.BigEndian.Uint16(body[0:2])),
		Message:    string(body[2:]),
	}, nil
}

// --- IAAddr ---

// OptIAAddress is an IA Address option (RFC 8415 section 21.6),
// carried inside IA_NA/IA_TA containers.
type OptIAAddress struct {
	IPv6Addr          net.IP
	PreferredLifetime uint32
	ValidLifetime     uint32
	Options           Options
}

func (o *OptIAAddress) Code() OptionCode { return OptionIAAddr }
func (o *OptIAAddress) ToBytes() []byte {
	body := make([]byte, 24)
	copy(body[0:16], o.IPv6Addr.To16())
	binary.BigEndian.PutUint32(body[16:20], o.PreferredLifetime)
	binary.BigEndian.PutUint32(body[20:24], o.ValidLifetime)
	return append(body, o.Options.ToBytes()...)
}

func decodeIAAddr(body []byte, depth int) (Option, error) {
	if len(body) < 24 {
		return nil, codecErr(ErrKindTruncated, "IAAddr truncated")
	}
	opts, err := decodeOptions(body[24:], depth)
	if err != nil {
		return nil, err
	}
	o := &OptIAAddress{
		IPv6Addr:          append(net.IP(nil), body[0:16]...),
		PreferredLifetime: binary.BigEndian.Uint32(body[16:20]),
		ValidLifetime:     binary.BigEndian.Uint32(body[20:24]),
		Options:           opts,
	}
	if invalidLifetimes(o.PreferredLifetime, o.ValidLifetime) {
		return nil, codecErr(ErrKindInvalidLifetimes, "IAAddr preferred-lifetime exceeds valid-lifetime")
	}
	return o, nil
}

func invalidLifetimes(preferred, valid uint32) bool {
	if preferred == InfinityLifetime || valid == InfinityLifetime {
		return false
	}
	return preferred > valid
}

// --- IA_NA / IA_TA ---

// OptIANA is an Identity Association for Non-temporary Addresses
// option (RFC 8415 section 21.4).
type OptIANA struct {
	IAID    [4]byte
	T1      uint32
	T2      uint32
	Options Options
}

func (o *OptIANA) Code() OptionCode { return OptionIANA }
func (o *OptIANA) ToBytes() []byte {
	body := make([]byte, 12)
	copy(body[0:4], o.IAID[:])
	binary.BigEndian.PutUint32(body[4:8], o.T1)
	binary.BigEndian.PutUint32(body[8:12], o.T2)
	return append(body, o.Options.ToBytes()...)
}

func decodeIANA(body []byte, depth int) (Option, error) {
	if len(body) < 12 {
		return nil, codecErr(ErrKindTruncated, "IA_NA truncated")
	}
	opts, err := decodeOptions(body[12:], depth)
	if err != nil {
		return nil, err
	}
	o := &OptIANA{T1: binary.BigEndian.Uint32(body[4:8]), T2: binary.BigEndian.Uint32(body[8:12]), Options: opts}
	copy(o.IAID[:], body[0:4])
	if invalidT1T2(o.T1, o.T2) {
		o.Options.Partial = true
	}
	return o, nil
}

func invalidT1T2(t1, t2 uint32) bool {
	if t1 == 0 || t2 == 0 {
		return false
	}
	if t1 == InfinityLifetime || t2 == InfinityLifetime {
		return false
	}
	return t1 > t2
}

// OptIATA is an Identity Association for Temporary Addresses option
// (RFC 8415 section 21.5); it has no T1/T2.
type OptIATA struct {
	IAID    [4]byte
	Options Options
}

func (o *OptIATA) Code() OptionCode { return OptionIATA }
func (o *OptIATA) ToBytes() []byte {
	body := make([]byte, 4)
	copy(body, o.IAID[:])
	return append(body, o.Options.ToBytes()...)
}

func decodeIATA(body []byte, depth int) (Option, error) {
	if len(body) < 4 {
		return nil, codecErr(ErrKindTruncated, "IA_TA truncated")
	}
	opts, err := decodeOptions(body[4:], depth)
	if err != nil {
		return nil, err
	}
	o := &OptIATA{Options: opts}
	copy(o.IAID[:], body[0:4])
	return o, nil
}

// --- IA_PD / IAPrefix ---

// OptIAPrefix is an IA Prefix option (RFC 8415 section 21.22).
type OptIAPrefix struct {
	PreferredLifetime uint32
	ValidLifetime     uint32
	Prefix            *net.IPNet
	Options           Options
}

func (o *OptIAPrefix) Code() OptionCode { return OptionIAPrefix }
func (o *OptIAPrefix) ToBytes() []byte {
	body := make([]byte, 25)
	binary.BigEndian.PutUint32(body[0:4], o.PreferredLifetime)
	binary.BigEndian.PutUint32(body[4:8], o.ValidLifetime)
	prefixLen := 0
	var ip net.IP = net.IPv6zero
	if o.Prefix != nil {
		prefixLen, _ = o.Prefix.Mask.Size()
		if o.Prefix.IP != nil {
			ip = o.Prefix.IP
		}
	}
	body[8] = byte(prefixLen)
	copy(body[9:25], ip.To16())
	return append(body, o.Options.ToBytes()...)
}

func decodeIAPrefix(body []byte, depth int) (Option, error) {
	if len(body) < 25 {
		return nil, codecErr(ErrKindTruncated, "IAPrefix truncated")
	}
	opts, err := decodeOptions(body[25:], depth)
	if err != nil {
		return nil, err
	}
	prefixLen := int(body[8])
	if prefixLen > 128 {
		return nil, codecErr(ErrKindBadDiscriminant, "IAPrefix prefix length > 128")
	}
	o := &OptIAPrefix{
		PreferredLifetime: binary.BigEndian.Uint32(body[0:4]),
		ValidLifetime:     binary.BigEndian.Uint32(body[4:8]),
		Prefix:            &net.IPNet{IP: append(net.IP(nil), body[9:25]...), Mask: net.CIDRMask(prefixLen, 128)},
		Options:           opts,
	}
	if invalidLifetimes(o.PreferredLifetime, o.ValidLifetime) {
		return nil, codecErr(ErrKindInvalidLifetimes, "IAPrefix preferred-lifetime exceeds valid-lifetime")
	}
	return o, nil
}

// OptIAPD is an Identity Association for Prefix Delegation option
// (RFC 8415 section 21.21).
type OptIAPD struct {
	IAID    [4]byte
	T1      uint32
	T2      uint32
	Options Options
}

func (o *OptIAPD) Code() OptionCode { return OptionIAPD }
func (o *OptIAPD) ToBytes() []byte {
	body := make([]byte, 12)
	copy(body[0:4], o.IAID[:])
	binary.BigEndian.PutUint32(body[4:8], o.T1)
	binary.BigEndian.PutUint32(body[8:12], o.T2)
	return append(body, o.Options.ToBytes()...)
}

func decodeIAPD(body []byte, depth int) (Option, error) {
	if len(body) < 12 {
		return nil, codecErr(ErrKindTruncated, "IA_PD truncated")
	}
	opts, err := decodeOptions(body[12:], depth)
	if err != nil {
		return nil, err
	}
	o := &OptIAPD{T1: binary.BigEndian.Uint32(body[4:8]), T2: binary.BigEndian.Uint32(body[8:12]), Options: opts}
	copy(o.IAID[:], body[0:4])
	if invalidT1T2(o.T1, o.T2) {
		o.Options.Partial = true
	}
	return o, nil
}

// Prefixes returns every IAPrefix hint/lease directly inside this
// container, used by the prefix handler to reconcile client hints
// against existing leases.
func (o *Options) Prefixes() []*OptIAPrefix {
	var out []*OptIAPrefix
	for _, opt := range o.list {
		if p, ok := opt.(*OptIAPrefix); ok {
			out = append(out, p)
		}
	}
	return out
}

// --- ORO (option request) ---

type OptOptionRequest struct {
	Requested []OptionCode
}

func (o *OptOptionRequest) Code() OptionCode { return OptionOptionRequest }
func (o *OptOptionRequest) ToBytes() []byte {
	body := make([]byte, 2*len(o.Requested))
	for i, c := range o.Requested {
		binary.BigEndian.PutUint16(body[2*i:2*i+2], uint16(c))
	}
	return body
}

func decodeOptionRequest(body []byte, _ int) (Option, error) {
	if len(body)%2 != 0 {
		return nil, codecErr(ErrKindBadLength, "option-request has odd length")
	}
	out := &OptOptionRequest{}
	for i := 0; i+1 < len(body); i += 2 {
		out.Requested = append(out.Requested, OptionCode(binary.BigEndian.Uint16(body[i:i+2])))
	}
	return out, nil
}

// IsRequested reports whether code appears in this option-request list.
func (o *OptOptionRequest) IsRequested(code OptionCode) bool {
	for _, c := range o.Requested {
		if c == code {
			return true
		}
	}
	return false
}

// --- Preference ---

type OptPreference struct{ Value uint8 }

func (o *OptPreference) Code() OptionCode { return OptionPreference }
func (o *OptPreference) ToBytes() []byte  { return []byte{o.Value} }

func decodePreference(body []byte, _ int) (Option, error) {
	if len(body) != 1 {
		return nil, codecErr(ErrKindBadLength, "preference must be 1 byte")
	}
	return &OptPreference{Value: body[0]}, nil
}

// --- Elapsed time ---

type OptElapsedTime struct{ Value uint16 } // hundredths of a second

func (o *OptElapsedTime) Code() OptionCode { return OptionElapsedTime }
func (o *OptElapsedTime) ToBytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, o.Value)
	return b
}

func decodeElapsedTime(body []byte, _ int) (Option, error) {
	if len(body) != 2 {
		return nil, codecErr(ErrKindBadLength, "elapsed-time must be 2 bytes")
	}
	return &OptElapsedTime{Value: binary.BigEndian.Uint16(body)}, nil
}

// --- Rapid commit (zero-length flag option) ---

type OptRapidCommit struct{}

func (o *OptRapidCommit) Code() OptionCode { return OptionRapidCommit }
func (o *OptRapidCommit) ToBytes() []byte  { return nil }

func decodeRapidCommit(body []byte, _ int) (Option, error) {
	if len(body) != 0 {
		return nil, codecErr(ErrKindBadLength, "rapid-commit must be empty")
	}
	return &OptRapidCommit{}, nil
}

// --- Unicast ---

type OptUnicast struct{ ServerAddress net.IP }

func (o *OptUnicast) Code() OptionCode { return OptionUnicast }
func (o *OptUnicast) ToBytes() []byte  { return o.ServerAddress.To16() }

func decodeUnicast(body []byte, _ int) (Option, error) {
	if len(body) != 16 {
		return nil, codecErr(ErrKindBadLength, "unicast address must be 16 bytes")
	}
	return &OptUnicast{ServerAddress: append(net.IP(nil), body...)}, nil
}

// --- Reconfigure message / accept ---

type OptReconfMsg struct{ MessageType MessageType }

func (o *OptReconfMsg) Code() OptionCode { return OptionReconfMsg }
func (o *OptReconfMsg) ToBytes() []byte  { return []byte{byte(o.MessageType)} }

func decodeReconfMsg(body []byte, _ int) (Option, error) {
	if len(body) != 1 {
		return nil, codecErr(ErrKindBadLength, "reconfigure-message must be 1 byte")
	}
	return &OptReconfMsg{MessageType: MessageType(body[0])}, nil
}

type OptReconfAccept struct{}

func (o *OptReconfAccept) Code() OptionCode { return OptionReconfAccept }
func (o *OptReconfAccept) ToBytes() []byte  { return nil }

func decodeReconfAccept(body []byte, _ int) (Option, error) {
	if len(body) != 0 {
		return nil, codecErr(ErrKindBadLength, "reconfigure-accept must be empty")
	}
	return &OptReconfAccept{}, nil
}

// --- Information refresh time ---

type OptInfoRefreshTime struct{ Value uint32 }

func (o *OptInfoRefreshTime) Code() OptionCode { return OptionInfoRefreshTime }
func (o *OptInfoRefreshTime) ToBytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, o.Value)
	return b
}

func decodeInfoRefreshTime(body []byte, _ int) (Option, error) {
	if len(body) != 4 {
		return nil, codecErr(ErrKindBadLength, "information-refresh-time must be 4 bytes")
	}
	return &OptInfoRefreshTime{Value: binary.BigEndian.Uint32(body)}, nil
}

// --- User class / Vendor class / Vendor opts ---

// OptUserClass holds a sequence of length-prefixed opaque class data
// items, per RFC 8415 section 21.15.
type OptUserClass struct{ Data [][]byte }

func (o *OptUserClass) Code() OptionCode { return OptionUserClass }
func (o *OptUserClass) ToBytes() []byte {
	var buf []byte
	for _, item := range o.Data {
		hdr := make([]byte, 2)
		binary.BigEndian.PutUint16(hdr, uint16(len(item)))
		buf = append(buf, hdr...)
		buf = append(buf, item...)
	}
	return buf
}

func decodeUserClass(body []byte, _ int) (Option, error) {
	out := &OptUserClass{}
	for len(body) > 0 {
		if len(body) < 2 {
			return nil, codecErr(ErrKindTruncated, "user-class item header truncated")
		}
		n := binary.BigEndian.Uint16(body[0:2])
		body = body[2:]
		if int(n) > len(body) {
			return nil, codecErr(ErrKindTruncated, "user-class item truncated")
		}
		out.Data = append(out.Data, append([]byte(nil), body[:n]...))
		body = body[n:]
	}
	return out, nil
}

// OptVendorClass holds a vendor's enterprise number plus a sequence of
// length-prefixed class-data items, per RFC 8415 section 21.16.
type OptVendorClass struct {
	EnterpriseNumber uint32
	Data             [][]byte
}

func (o *OptVendorClass) Code() OptionCode { return OptionVendorClass }
func (o *OptVendorClass) ToBytes() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, o.EnterpriseNumber)
	for _, item := range o.Data {
		hdr := make([]byte, 2)
		binary.BigEndian.PutUint16(hdr, uint16(len(item)))
		buf = append(buf, hdr...)
		buf = append(buf, item...)
	}
	return buf
}

func decodeVendorClass(body []byte, _ int) (Option, error) {
	if len(body) < 4 {
		return nil, codecErr(ErrKindTruncated, "vendor-class truncated")
	}
	out := &OptVendorClass{EnterpriseNumber: binary.BigEndian.Uint32(body[0:4])}
	rest := body[4:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, codecErr(ErrKindTruncated, "vendor-class item header truncated")
		}
		n := binary.BigEndian.Uint16(rest[0:2])
		rest = rest[2:]
		if int(n) > len(rest) {
			return nil, codecErr(ErrKindTruncated, "vendor-class item truncated")
		}
		out.Data = append(out.Data, append([]byte(nil), rest[:n]...))
		rest = rest[n:]
	}
	return out, nil
}

// OptVendorOpts holds a vendor's enterprise number plus an arbitrary
// nested option list (vendor-specific sub-options are not in the
// global registry and round-trip as raw (code,value) pairs), per RFC
// 8415 section 21.17.
type OptVendorOpts struct {
	EnterpriseNumber uint32
	SubOptions       []VendorSubOption
}

// VendorSubOption is a raw vendor-specific TLV; vendor sub-option
// codes are scoped to the enterprise number, so the global option
// registry has no say over them and they round-trip as raw pairs.
type VendorSubOption struct {
	Code uint16
	Data []byte
}

func (o *OptVendorOpts) Code() OptionCode { return OptionVendorOpts }
func (o *OptVendorOpts) ToBytes() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, o.EnterpriseNumber)
	for _, sub := range o.SubOptions {
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint16(hdr[0:2], sub.Code)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(sub.Data)))
		buf = append(buf, hdr...)
		buf = append(buf, sub.Data...)
	}
	return buf
}

func decodeVendorOpts(body []byte, _ int) (Option, error) {
	if len(body) < 4 {
		return nil, codecErr(ErrKindTruncated, "vendor-opts truncated")
	}
	out := &OptVendorOpts{EnterpriseNumber: binary.BigEndian.Uint32(body[0:4])}
	rest := body[4:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, codecErr(ErrKindTruncated, "vendor sub-option header truncated")
		}
		code := binary.BigEndian.Uint16(rest[0:2])
		n := binary.BigEndian.Uint16(rest[2:4])
		rest = rest[4:]
		if int(n) > len(rest) {
			return nil, codecErr(ErrKindTruncated, "vendor sub-option truncated")
		}
		out.SubOptions = append(out.SubOptions, VendorSubOption{Code: code, Data: append([]byte(nil), rest[:n]...)})
		rest = rest[n:]
	}
	return out, nil
}

// --- Options container convenience accessors used by handlers ---

// ClientID returns the decoded client-id DUID option, or nil.
func (o *Options) ClientID() *OptClientID {
	if opt, ok := o.Get(OptionClientID).(*OptClientID); ok {
		return opt
	}
	return nil
}

// ServerID returns the decoded server-id DUID option, or nil.
func (o *Options) ServerID() *OptServerID {
	if opt, ok := o.Get(OptionServerID).(*OptServerID); ok {
		return opt
	}
	return nil
}

// OneIANA returns the first IA_NA option, or nil.
func (o *Options) OneIANA() *OptIANA {
	if opt, ok := o.Get(OptionIANA).(*OptIANA); ok {
		return opt
	}
	return nil
}

// IANAs returns every IA_NA option.
func (o *Options) IANAs() []*OptIANA {
	var out []*OptIANA
	for _, opt := range o.GetAll(OptionIANA) {
		out = append(out, opt.(*OptIANA))
	}
	return out
}

// IAPD returns every IA_PD option.
func (o *Options) IAPD() []*OptIAPD {
	var out []*OptIAPD
	for _, opt := range o.GetAll(OptionIAPD) {
		out = append(out, opt.(*OptIAPD))
	}
	return out
}

// IsOptionRequested reports whether the request's option-request list
// (if present) names code.
func (o *Options) IsOptionRequested(code OptionCode) bool {
	oro, ok := o.Get(OptionOptionRequest).(*OptOptionRequest)
	if !ok {
		return false
	}
	return oro.IsRequested(code)
}
