package wire

import "net"

func init() {
	registerOption(OptionSIPServersDomainList, MultiplicityOne, decodeSIPServersDomainList)
	registerOption(OptionSIPServersAddressList, MultiplicityOne, decodeSIPServersAddressList)
}

// OptSIPServersDomainList is the SIP Servers Domain Name List option,
// RFC 3319 section 3.1.
type OptSIPServersDomainList struct{ Domains []string }

func (o *OptSIPServersDomainList) Code() OptionCode { return OptionSIPServersDomainList }
func (o *OptSIPServersDomainList) ToBytes() []byte  { return encodeDomainNameList(o.Domains) }

func decodeSIPServersDomainList(body []byte, _ int) (Option, error) {
	domains, err := decodeDomainNameList(body)
	if err != nil {
		return nil, err
	}
	return &OptSIPServersDomainList{Domains: domains}, nil
}

// OptSIPServersAddressList is the SIP Servers IPv6 Address List
// option, RFC 3319 section 3.2.
type OptSIPServersAddressList struct{ Addresses []net.IP }

func (o *OptSIPServersAddressList) Code() OptionCode { return OptionSIPServersAddressList }
func (o *OptSIPServersAddressList) ToBytes() []byte {
	buf := make([]byte, 0, 16*len(o.Addresses))
	for _, ip := range o.Addresses {
		buf = append(buf, ip.To16()...)
	}
	return buf
}

func decodeSIPServersAddressList(body []byte, _ int) (Option, error) {
	if len(body)%16 != 0 {
		return nil, codecErr(ErrKindBadLength, "sip-servers-address-list length not a multiple of 16")
	}
	o := &OptSIPServersAddressList{}
	for i := 0; i+16 <= len(body); i += 16 {
		o.Addresses = append(o.Addresses, append(net.IP(nil), body[i:i+16]...))
	}
	return o, nil
}
