package wire

import "net"

// S46 options implement the Mapping of Address and Port (MAP) and
// Lightweight 4over6 softwire mechanisms, RFC 7598.

func init() {
	registerOption(OptionS46Rule, MultiplicityMany, decodeS46Rule)
	registerOption(OptionS46BR, MultiplicityOne, decodeS46BR)
	registerOption(OptionS46DMR, MultiplicityOne, decodeS46DMR)
	registerOption(OptionS46V4V6Bind, MultiplicityMany, decodeS46V4V6Bind)
	registerOption(OptionS46PortParams, MultiplicityOne, decodeS46PortParams)
	registerOption(OptionS46ContMAPE, MultiplicityOne, decodeS46ContMAPE)
	registerOption(OptionS46ContMAPT, MultiplicityOne, decodeS46ContMAPT)
	registerOption(OptionS46ContLW, MultiplicityOne, decodeS46ContLW)
}

func encodeV6Prefix(p *net.IPNet) (prefixLen byte, bytes []byte) {
	if p == nil {
		return 0, nil
	}
	n, _ := p.Mask.Size()
	nbytes := (n + 7) / 8
	full := p.IP.To16()
	if full == nil {
		full = net.IPv6zero
	}
	return byte(n), append([]byte(nil), full[:nbytes]...)
}

func decodeV6Prefix(prefixLen byte, data []byte) (*net.IPNet, int, error) {
	if prefixLen > 128 {
		return nil, 0, codecErr(ErrKindBadDiscriminant, "s46 prefix length > 128")
	}
	n := (int(prefixLen) + 7) / 8
	if n > len(data) {
		return nil, 0, codecErr(ErrKindTruncated, "s46 prefix bytes truncated")
	}
	full := make([]byte, 16)
	copy(full, data[:n])
	return &net.IPNet{IP: full, Mask: net.CIDRMask(int(prefixLen), 128)}, n, nil
}

// OptS46Rule is a MAP-E/MAP-T/lw4o6 Basic Mapping Rule (BMR) or
// Forwarding Mapping Rule (FMR), RFC 7598 section 5.1.
type OptS46Rule struct {
	FMR           bool // flags bit 0: rule is a Forwarding Mapping Rule
	EALen         uint8
	IPv4Prefix    net.IP
	IPv4PrefixLen uint8
	IPv6Prefix    *net.IPNet
	Options       Options
}

func (o *OptS46Rule) Code() OptionCode { return OptionS46Rule }
func (o *OptS46Rule) ToBytes() []byte {
	var flags byte
	if o.FMR {
		flags |= 0x01
	}
	prefixLen, prefixBytes := encodeV6Prefix(o.IPv6Prefix)
	body := []byte{flags, o.EALen, o.IPv4PrefixLen}
	v4 := o.IPv4Prefix.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	body = append(body, v4...)
	body = append(body, prefixLen)
	body = append(body, prefixBytes...)
	return append(body, o.Options.ToBytes()...)
}

func decodeS46Rule(body []byte, depth int) (Option, error) {
	if len(body) < 8 {
		return nil, codecErr(ErrKindTruncated, "s46-rule truncated")
	}
	flags, eaLen, v4PrefixLen := body[0], body[1], body[2]
	v4 := append(net.IP(nil), body[3:7]...)
	prefixLen := body[7]
	prefix, n, err := decodeV6Prefix(prefixLen, body[8:])
	if err != nil {
		return nil, err
	}
	rest := body[8+n:]
	opts, err := decodeOptions(rest, depth)
	if err != nil {
		return nil, err
	}
	return &OptS46Rule{
		FMR:           flags&0x01 != 0,
		EALen:         eaLen,
		IPv4Prefix:    v4,
		IPv4PrefixLen: v4PrefixLen,
		IPv6Prefix:    prefix,
		Options:       opts,
	}, nil
}

// OptS46BR is the MAP-E Border Relay option, RFC 7598 section 5.2.
type OptS46BR struct{ BorderRelay net.IP }

func (o *OptS46BR) Code() OptionCode { return OptionS46BR }
func (o *OptS46BR) ToBytes() []byte  { return o.BorderRelay.To16() }

func decodeS46BR(body []byte, _ int) (Option, error) {
	if len(body) != 16 {
		return nil, codecErr(ErrKindBadLength, "s46-br must be 16 bytes")
	}
	return &OptS46BR{BorderRelay: append(net.IP(nil), body...)}, nil
}

// OptS46DMR is the MAP-T Default Mapping Rule option, RFC 7598
// section 5.3.
type OptS46DMR struct{ DMRPrefix *net.IPNet }

func (o *OptS46DMR) Code() OptionCode { return OptionS46DMR }
func (o *OptS46DMR) ToBytes() []byte {
	prefixLen, prefixBytes := encodeV6Prefix(o.DMRPrefix)
	return append([]byte{prefixLen}, prefixBytes...)
}

func decodeS46DMR(body []byte, _ int) (Option, error) {
	if len(body) < 1 {
		return nil, codecErr(ErrKindTruncated, "s46-dmr truncated")
	}
	prefix, _, err := decodeV6Prefix(body[0], body[1:])
	if err != nil {
		return nil, err
	}
	return &OptS46DMR{DMRPrefix: prefix}, nil
}

// OptS46V4V6Bind is the lw4o6 IPv4/IPv6 address binding option, RFC
// 7598 section 5.4.
type OptS46V4V6Bind struct {
	IPv4Address net.IP
	IPv6Prefix  *net.IPNet
	Options     Options
}

func (o *OptS46V4V6Bind) Code() OptionCode { return OptionS46V4V6Bind }
func (o *OptS46V4V6Bind) ToBytes() []byte {
	v4 := o.IPv4Address.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	prefixLen, prefixBytes := encodeV6Prefix(o.IPv6Prefix)
	body := append(append([]byte(nil), v4...), prefixLen)
	body = append(body, prefixBytes...)
	return append(body, o.Options.ToBytes()...)
}

func decodeS46V4V6Bind(body []byte, depth int) (Option, error) {
	if len(body) < 5 {
		return nil, codecErr(ErrKindTruncated, "s46-v4v6bind truncated")
	}
	v4 := append(net.IP(nil), body[0:4]...)
	prefix, n, err := decodeV6Prefix(body[4], body[5:])
	if err != nil {
		return nil, err
	}
	opts, err := decodeOptions(body[5+n:], depth)
	if err != nil {
		return nil, err
	}
	return &OptS46V4V6Bind{IPv4Address: v4, IPv6Prefix: prefix, Options: opts}, nil
}

// OptS46PortParams carries the PSID port-set parameters, RFC 7598
// section 5.5.
type OptS46PortParams struct {
	Offset  uint8
	PSIDLen uint8
	PSID    uint16
}

func (o *OptS46PortParams) Code() OptionCode { return OptionS46PortParams }
func (o *OptS46PortParams) ToBytes() []byte {
	return []byte{o.Offset, o.PSIDLen, byte(o.PSID >> 8), byte(o.PSID)}
}

func decodeS46PortParams(body []byte, _ int) (Option, error) {
	if len(body) != 4 {
		return nil, codecErr(ErrKindBadLength, "s46-portparams must be 4 bytes")
	}
	return &OptS46PortParams{
		Offset:  body[0],
		PSIDLen: body[1],
		PSID:    uint16(body[2])<<8 | uint16(body[3]),
	}, nil
}

// OptS46ContMAPE is the MAP-E container option wrapping S46Rule/S46BR,
// RFC 7598 section 4.
type OptS46ContMAPE struct{ Options Options }

func (o *OptS46ContMAPE) Code() OptionCode { return OptionS46ContMAPE }
func (o *OptS46ContMAPE) ToBytes() []byte  { return o.Options.ToBytes() }

func decodeS46ContMAPE(body []byte, depth int) (Option, error) {
	opts, err := decodeOptions(body, depth)
	if err != nil {
		return nil, err
	}
	return &OptS46ContMAPE{Options: opts}, nil
}

// OptS46ContMAPT is the MAP-T container option wrapping
// S46Rule/S46DMR, RFC 7598 section 4.
type OptS46ContMAPT struct{ Options Options }

func (o *OptS46ContMAPT) Code() OptionCode { return OptionS46ContMAPT }
func (o *OptS46ContMAPT) ToBytes() []byte  { return o.Options.ToBytes() }

func decodeS46ContMAPT(body []byte, depth int) (Option, error) {
	opts, err := decodeOptions(body, depth)
	if err != nil {
		return nil, err
	}
	return &OptS46ContMAPT{Options: opts}, nil
}

// OptS46ContLW is the lw4o6 container option wrapping S46V4V6Bind/
// S46BR, RFC 7598 section 4.
type OptS46ContLW struct{ Options Options }

func (o *OptS46ContLW) Code() OptionCode { return OptionS46ContLW }
func (o *OptS46ContLW) ToBytes() []byte  { return o.Options.ToBytes() }

func decodeS46ContLW(body []byte, depth int) (Option, error) {
	opts, err := decodeOptions(body, depth)
	if err != nil {
		return nil, err
	}
	return &OptS46ContLW{Options: opts}, nil
}
