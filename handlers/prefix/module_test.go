package prefix

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/allocators/bitmap"
	"github.com/hexasix/dhcp6d/store"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type memStore struct {
	byKey map[string]*store.Lease
}

func key(duid []byte, iaid [4]byte, kind store.LeaseKind) string {
	return string(duid) + string(iaid[:]) + string(rune(kind))
}

func newMemStore() *memStore { return &memStore{byKey: map[string]*store.Lease{}} }

func (s *memStore) Lookup(duid []byte, iaid [4]byte, kind store.LeaseKind) (*store.Lease, error) {
	return s.byKey[key(duid, iaid, kind)], nil
}
func (s *memStore) Save(lease *store.Lease) error {
	s.byKey[key(lease.DUID, lease.IAID, lease.Kind)] = lease
	return nil
}
func (s *memStore) Release(duid []byte, iaid [4]byte, kind store.LeaseKind) error {
	delete(s.byKey, key(duid, iaid, kind))
	return nil
}
func (s *memStore) LookupAll(duid []byte) ([]*store.Lease, error) {
	var out []*store.Lease
	for _, l := range s.byKey {
		if string(l.DUID) == string(duid) {
			out = append(out, l)
		}
	}
	return out, nil
}
func (s *memStore) LookupByAddress(ip net.IP) (*store.Lease, error) { return nil, nil }
func (s *memStore) Close() error                                    { return nil }

func newTestModule(t *testing.T) *Module {
	t.Helper()
	_, base, err := net.ParseCIDR("2001:db8::/48")
	require.NoError(t, err)
	allocator, err := bitmap.NewPrefixAllocator(base, 56)
	require.NoError(t, err)
	return &Module{
		LeaseTime: caddy.Duration(time.Hour),
		logger:    zap.NewNop(),
		allocator: allocator,
		leases:    newMemStore(),
	}
}

func newRequestWithIAPD(iaid [4]byte, hint *net.IPNet) *transaction.Transaction {
	req := &wire.Message{MessageType: wire.MessageTypeRequest}
	req.Options.Add(&wire.OptClientID{DUID: &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}})
	iapd := &wire.OptIAPD{IAID: iaid}
	if hint != nil {
		iapd.Options.Add(&wire.OptIAPrefix{Prefix: hint})
	}
	req.Options.Add(iapd)
	return transaction.New(context.Background(), req, nil, nil, "eth0", time.Now().Add(time.Second))
}

func TestPrefixDelegatesFirstFreeBlock(t *testing.T) {
	m := newTestModule(t)
	tx := newRequestWithIAPD([4]byte{1, 1, 1, 1}, nil)
	tx.Response = wire.NewReplyFromMessage(tx.Request)

	require.NoError(t, m.Handle(tx, func() error { return nil }))

	iapds := tx.Response.Options.IAPD()
	require.Len(t, iapds, 1)
	prefixes := iapds[0].Options.Prefixes()
	require.Len(t, prefixes, 1)
	assert.Equal(t, "2001:db8::/56", prefixes[0].Prefix.String())
}

func TestPrefixReusesLeaseAcrossRenew(t *testing.T) {
	m := newTestModule(t)
	iaid := [4]byte{2, 2, 2, 2}

	first := newRequestWithIAPD(iaid, nil)
	first.Response = wire.NewReplyFromMessage(first.Request)
	require.NoError(t, m.Handle(first, func() error { return nil }))
	firstPrefix := first.Response.Options.IAPD()[0].Options.Prefixes()[0].Prefix

	renew := newRequestWithIAPD(iaid, firstPrefix)
	renew.Request.MessageType = wire.MessageTypeRenew
	renew.Response = wire.NewReplyFromMessage(renew.Request)
	require.NoError(t, m.Handle(renew, func() error { return nil }))
	renewedPrefix := renew.Response.Options.IAPD()[0].Options.Prefixes()[0].Prefix

	assert.Equal(t, firstPrefix.String(), renewedPrefix.String())
}

func TestPrefixReturnsNoPrefixAvailWhenExhausted(t *testing.T) {
	_, base, err := net.ParseCIDR("2001:db8::/56")
	require.NoError(t, err)
	allocator, err := bitmap.NewPrefixAllocator(base, 56)
	require.NoError(t, err)
	m := &Module{LeaseTime: caddy.Duration(time.Hour), logger: zap.NewNop(), allocator: allocator, leases: newMemStore()}

	first := newRequestWithIAPD([4]byte{1, 1, 1, 1}, nil)
	first.Response = wire.NewReplyFromMessage(first.Request)
	require.NoError(t, m.Handle(first, func() error { return nil }))

	second := newRequestWithIAPD([4]byte{2, 2, 2, 2}, nil)
	second.Response = wire.NewReplyFromMessage(second.Request)
	require.NoError(t, m.Handle(second, func() error { return nil }))

	iapds := second.Response.Options.IAPD()
	require.Len(t, iapds, 1)
	status, ok := iapds[0].Options.Get(wire.OptionStatusCode).(*wire.OptStatusCode)
	require.True(t, ok)
	assert.Equal(t, wire.StatusNoPrefixAvail, status.StatusCode)
}
