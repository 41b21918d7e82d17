package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainNameListRoundTrip(t *testing.T) {
	names := []string{"example.com", "internal.corp.example", "localdomain"}
	encoded := encodeDomainNameList(names)
	decoded, err := decodeDomainNameList(encoded)
	require.NoError(t, err)
	assert.Equal(t, names, decoded)
}

func TestDomainNameTrailingDotIsNormalized(t *testing.T) {
	assert.Equal(t, encodeDomainName("example.com"), encodeDomainName("example.com."))
}

func TestDomainNameCompressionPointerRejected(t *testing.T) {
	_, _, err := decodeDomainName([]byte{0xc0, 0x04})
	require.Error(t, err)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrKindBadDiscriminant, ce.Kind)
}

func TestDomainNameTruncatedLabelRejected(t *testing.T) {
	_, _, err := decodeDomainName([]byte{5, 'a', 'b'})
	require.Error(t, err)
}

func TestSearchListOptionRoundTrip(t *testing.T) {
	opt := &OptDomainSearchList{Domains: []string{"example.com", "example.net"}}
	decoded, err := decodeDomainSearchList(opt.ToBytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, opt.Domains, decoded.(*OptDomainSearchList).Domains)
}

func TestNTPServerUnknownSuboptionRoundTrips(t *testing.T) {
	raw := []byte{
		0x00, 0x01, 0x00, 0x10, // server-addr suboption
		0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x7b,
		0x00, 0x63, 0x00, 0x03, // unknown suboption code 99
		0xde, 0xad, 0xbe,
	}
	opt, err := decodeNTPServer(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, raw, opt.ToBytes(), "unknown NTP suboptions must survive re-encode byte-identically")
}

func TestClientFQDNTrailingBytesRejected(t *testing.T) {
	body := append([]byte{0x01}, encodeDomainName("host.example.com")...)
	_, err := decodeClientFQDN(body, 0)
	require.NoError(t, err)

	_, err = decodeClientFQDN(append(body, 0xff), 0)
	require.Error(t, err)
}

func TestAFTRNameRoundTrip(t *testing.T) {
	opt := &OptAFTRName{Name: "aftr.example.org"}
	decoded, err := decodeAFTRName(opt.ToBytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, opt.Name, decoded.(*OptAFTRName).Name)
}
