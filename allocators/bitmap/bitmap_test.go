package bitmap

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/allocators"
)

func TestAddressAllocatorSequentialAndReuse(t *testing.T) {
	a, err := NewAddressAllocator(net.ParseIP("2001:db8::10"), net.ParseIP("2001:db8::11"))
	require.NoError(t, err)

	first, err := a.Allocate(net.IPNet{})
	require.NoError(t, err)
	assert.True(t, first.IP.Equal(net.ParseIP("2001:db8::10")))

	second, err := a.Allocate(net.IPNet{})
	require.NoError(t, err)
	assert.True(t, second.IP.Equal(net.ParseIP("2001:db8::11")))

	_, err = a.Allocate(net.IPNet{})
	assert.ErrorIs(t, err, allocators.ErrExhausted)

	require.NoError(t, a.Free(*first))
	third, err := a.Allocate(net.IPNet{})
	require.NoError(t, err)
	assert.True(t, third.IP.Equal(net.ParseIP("2001:db8::10")), "freeing an address makes it available again")
}

func TestAddressAllocatorHonorsRequestedAddress(t *testing.T) {
	a, err := NewAddressAllocator(net.ParseIP("2001:db8::10"), net.ParseIP("2001:db8::20"))
	require.NoError(t, err)

	want := net.IPNet{IP: net.ParseIP("2001:db8::15")}
	got, err := a.Allocate(want)
	require.NoError(t, err)
	assert.True(t, got.IP.Equal(want.IP))

	_, err = a.Allocate(want)
	assert.Error(t, err, "the same address cannot be leased twice")
}

func TestAddressAllocatorRejectsOutOfRange(t *testing.T) {
	a, err := NewAddressAllocator(net.ParseIP("2001:db8::10"), net.ParseIP("2001:db8::20"))
	require.NoError(t, err)

	_, err = a.Allocate(net.IPNet{IP: net.ParseIP("2001:db9::1")})
	assert.ErrorIs(t, err, allocators.ErrOutOfRange)
}

func TestPrefixAllocatorCarvesDelegations(t *testing.T) {
	_, base, err := net.ParseCIDR("2001:db8::/48")
	require.NoError(t, err)
	a, err := NewPrefixAllocator(base, 56)
	require.NoError(t, err)

	p1, err := a.Allocate(net.IPNet{})
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::/56", p1.String())

	p2, err := a.Allocate(net.IPNet{})
	require.NoError(t, err)
	assert.Equal(t, "2001:db8:0:100::/56", p2.String())

	require.NoError(t, a.Free(*p1))
	p3, err := a.Allocate(net.IPNet{})
	require.NoError(t, err)
	assert.Equal(t, p1.String(), p3.String())
}

func TestPrefixAllocatorRejectsMismatchedLength(t *testing.T) {
	_, base, err := net.ParseCIDR("2001:db8::/48")
	require.NoError(t, err)
	a, err := NewPrefixAllocator(base, 56)
	require.NoError(t, err)

	_, wrongLen, err := net.ParseCIDR("2001:db8::/60")
	require.NoError(t, err)
	_, err = a.Allocate(net.IPNet{IP: wrongLen.IP, Mask: wrongLen.Mask})
	assert.ErrorIs(t, err, allocators.ErrOutOfRange)
}
