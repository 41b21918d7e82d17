package wire

import (
	"encoding/binary"
	"net"
)

// Assorted extension options: DS-Lite AFTR name (RFC 6334), Client
// FQDN (RFC 4704), boot file selection and client architecture type
// (RFC 5970), and legacy NIS servers (RFC 3898).

func init() {
	registerOption(OptionAFTRName, MultiplicityOne, decodeAFTRName)
	registerOption(OptionClientFQDN, MultiplicityOne, decodeClientFQDN)
	registerOption(OptionBootfileURL, MultiplicityOne, decodeBootfileURL)
	registerOption(OptionBootfileParam, MultiplicityOne, decodeBootfileParam)
	registerOption(OptionClientArchType, MultiplicityOne, decodeClientArchType)
	registerOption(OptionNISServers, MultiplicityOne, decodeNISServers)
}

// OptAFTRName names the DS-Lite AFTR tunnel endpoint, RFC 6334.
type OptAFTRName struct{ Name string }

func (o *OptAFTRName) Code() OptionCode { return OptionAFTRName }
func (o *OptAFTRName) ToBytes() []byte  { return encodeDomainName(o.Name) }

func decodeAFTRName(body []byte, _ int) (Option, error) {
	name, n, err := decodeDomainName(body)
	if err != nil {
		return nil, err
	}
	if n != len(body) {
		return nil, codecErr(ErrKindBadLength, "aftr-name has trailing bytes")
	}
	return &OptAFTRName{Name: name}, nil
}

// ClientFQDNFlags are the flag bits of the Client FQDN option, RFC
// 4704 section 4.
type ClientFQDNFlags uint8

const (
	ClientFQDNFlagS ClientFQDNFlags = 1 << 0 // server should perform the AAAA update
	ClientFQDNFlagO ClientFQDNFlags = 1 << 1 // server overrode the client's S preference
	ClientFQDNFlagN ClientFQDNFlags = 1 << 2 // server should not perform any update
)

// OptClientFQDN carries the client's fully qualified domain name and
// DNS-update preference flags, RFC 4704.
type OptClientFQDN struct {
	Flags ClientFQDNFlags
	Name  string
}

func (o *OptClientFQDN) Code() OptionCode { return OptionClientFQDN }
func (o *OptClientFQDN) ToBytes() []byte {
	return append([]byte{byte(o.Flags)}, encodeDomainName(o.Name)...)
}

func decodeClientFQDN(body []byte, _ int) (Option, error) {
	if len(body) < 1 {
		return nil, codecErr(ErrKindTruncated, "client-fqdn truncated")
	}
	name, n, err := decodeDomainName(body[1:])
	if err != nil {
		return nil, err
	}
	if 1+n != len(body) {
		return nil, codecErr(ErrKindBadLength, "client-fqdn has trailing bytes")
	}
	return &OptClientFQDN{Flags: ClientFQDNFlags(body[0]), Name: name}, nil
}

// OptBootfileURL is the boot file URL option, RFC 5970 section 3.1.
type OptBootfileURL struct{ URL string }

func (o *OptBootfileURL) Code() OptionCode { return OptionBootfileURL }
func (o *OptBootfileURL) ToBytes() []byte  { return []byte(o.URL) }

func decodeBootfileURL(body []byte, _ int) (Option, error) {
	return &OptBootfileURL{URL: string(body)}, nil
}

// OptBootfileParam is the boot file parameters option, a sequence of
// length-prefixed opaque parameters, RFC 5970 section 3.2.
type OptBootfileParam struct{ Params [][]byte }

func (o *OptBootfileParam) Code() OptionCode { return OptionBootfileParam }
func (o *OptBootfileParam) ToBytes() []byte {
	var buf []byte
	for _, p := range o.Params {
		hdr := make([]byte, 2)
		binary.BigEndian.PutUint16(hdr, uint16(len(p)))
		buf = append(buf, hdr...)
		buf = append(buf, p...)
	}
	return buf
}

func decodeBootfileParam(body []byte, _ int) (Option, error) {
	out := &OptBootfileParam{}
	for len(body) > 0 {
		if len(body) < 2 {
			return nil, codecErr(ErrKindTruncated, "bootfile-param item header truncated")
		}
		n := binary.BigEndian.Uint16(body[0:2])
		body = body[2:]
		if int(n) > len(body) {
			return nil, codecErr(ErrKindTruncated, "bootfile-param item truncated")
		}
		out.Params = append(out.Params, append([]byte(nil), body[:n]...))
		body = body[n:]
	}
	return out, nil
}

// OptClientArchType lists the client's architecture types, RFC 5970
// section 3.3 (values from the PXE architecture type registry).
type OptClientArchType struct{ ArchTypes []uint16 }

func (o *OptClientArchType) Code() OptionCode { return OptionClientArchType }
func (o *OptClientArchType) ToBytes() []byte {
	buf := make([]byte, 2*len(o.ArchTypes))
	for i, t := range o.ArchTypes {
		binary.BigEndian.PutUint16(buf[2*i:2*i+2], t)
	}
	return buf
}

func decodeClientArchType(body []byte, _ int) (Option, error) {
	if len(body)%2 != 0 {
		return nil, codecErr(ErrKindBadLength, "client-arch-type has odd length")
	}
	out := &OptClientArchType{}
	for i := 0; i+1 < len(body); i += 2 {
		out.ArchTypes = append(out.ArchTypes, binary.BigEndian.Uint16(body[i:i+2]))
	}
	return out, nil
}

// OptNISServers is the legacy NIS Servers option, RFC 3898 section 3.
type OptNISServers struct{ Servers []net.IP }

func (o *OptNISServers) Code() OptionCode { return OptionNISServers }
func (o *OptNISServers) ToBytes() []byte {
	buf := make([]byte, 0, 16*len(o.Servers))
	for _, ip := range o.Servers {
		buf = append(buf, ip.To16()...)
	}
	return buf
}

func decodeNISServers(body []byte, _ int) (Option, error) {
	if len(body)%16 != 0 {
		return nil, codecErr(ErrKindBadLength, "nis-servers length not a multiple of 16")
	}
	o := &OptNISServers{}
	for i := 0; i+16 <= len(body); i += 16 {
		o.Servers = append(o.Servers, append(net.IP(nil), body[i:i+16]...))
	}
	return o, nil
}
