package wire

import (
	"encoding/binary"
	"net"
)

// NTP server suboption codes, RFC 5908 section 4.
type NTPSuboptionCode uint16

const (
	NTPSuboptionServerAddr    NTPSuboptionCode = 1
	NTPSuboptionMulticastAddr NTPSuboptionCode = 2
	NTPSuboptionServerFQDN    NTPSuboptionCode = 3
)

func init() {
	registerOption(OptionNTPServer, MultiplicityOne, decodeNTPServer)
	registerOption(OptionSNTPServers, MultiplicityOne, decodeSNTPServers)
}

// NTPSuboption is one sub-TLV inside the NTP Server option.
type NTPSuboption struct {
	Code NTPSuboptionCode
	// Address is set for ServerAddr/MulticastAddr suboptions.
	Address net.IP
	// FQDN is set for the ServerFQDN suboption.
	FQDN string
	// Raw preserves the body of suboption codes this codec doesn't
	// model, so the option re-encodes byte-identically.
	Raw []byte
}

func (s *NTPSuboption) toBytes() []byte {
	var body []byte
	switch s.Code {
	case NTPSuboptionServerAddr, NTPSuboptionMulticastAddr:
		body = s.Address.To16()
	case NTPSuboptionServerFQDN:
		body = encodeDomainName(s.FQDN)
	default:
		body = s.Raw
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint16(hdr[0:2], uint16(s.Code))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(body)))
	return append(hdr, body...)
}

// OptNTPServer is the NTP Server option, RFC 5908, carrying one or
// more address/FQDN suboptions.
type OptNTPServer struct{ Suboptions []NTPSuboption }

func (o *OptNTPServer) Code() OptionCode { return OptionNTPServer }
func (o *OptNTPServer) ToBytes() []byte {
	var buf []byte
	for _, s := range o.Suboptions {
		buf = append(buf, s.toBytes()...)
	}
	return buf
}

func decodeNTPServer(body []byte, _ int) (Option, error) {
	o := &OptNTPServer{}
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, codecErr(ErrKindTruncated, "ntp suboption header truncated")
		}
		code := NTPSuboptionCode(binary.BigEndian.Uint16(body[0:2]))
		length := binary.BigEndian.Uint16(body[2:4])
		body = body[4:]
		if int(length) > len(body) {
			return nil, codecErr(ErrKindTruncated, "ntp suboption body truncated")
		}
		sub := body[:length]
		body = body[length:]

		switch code {
		case NTPSuboptionServerAddr, NTPSuboptionMulticastAddr:
			if len(sub) != 16 {
				return nil, codecErr(ErrKindBadLength, "ntp server/multicast address suboption must be 16 bytes")
			}
			o.Suboptions = append(o.Suboptions, NTPSuboption{Code: code, Address: append(net.IP(nil), sub...)})
		case NTPSuboptionServerFQDN:
			name, _, err := decodeDomainName(sub)
			if err != nil {
				return nil, err
			}
			o.Suboptions = append(o.Suboptions, NTPSuboption{Code: code, FQDN: name})
		default:
			o.Suboptions = append(o.Suboptions, NTPSuboption{Code: code, Raw: append([]byte(nil), sub...)})
		}
	}
	return o, nil
}

// OptSNTPServers is the legacy Simple NTP Server option, RFC 4075,
// superseded by OptNTPServer but still sent by some clients.
type OptSNTPServers struct{ Servers []net.IP }

func (o *OptSNTPServers) Code() OptionCode { return OptionSNTPServers }
func (o *OptSNTPServers) ToBytes() []byte {
	buf := make([]byte, 0, 16*len(o.Servers))
	for _, ip := range o.Servers {
		buf = append(buf, ip.To16()...)
	}
	return buf
}

func decodeSNTPServers(body []byte, _ int) (Option, error) {
	if len(body)%16 != 0 {
		return nil, codecErr(ErrKindBadLength, "sntp-servers length not a multiple of 16")
	}
	o := &OptSNTPServers{}
	for i := 0; i+16 <= len(body); i += 16 {
		o.Servers = append(o.Servers, append(net.IP(nil), body[i:i+16]...))
	}
	return o, nil
}
