package pool

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

// memStore is a minimal in-memory store.Store fake, standing in for
// store.OpenSQLiteStore so this handler's allocation logic can be
// tested without a database file.
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
func (s *memStore) LookupByAddress(ip net.IP) (*store.Lease, error) {
	for _, l := range s.byKey {
		if l.IP.Equal(ip) {
			return l, nil
		}
	}
	return nil, nil
}
func (s *memStore) Close() error { return nil }

func newTestModule(t *testing.T) *Module {
	t.Helper()
	allocator, err := bitmap.NewAddressAllocator(net.ParseIP("2001:db8::10"), net.ParseIP("2001:db8::10"))
	require.NoError(t, err)
	return &Module{
		LeaseTime: caddy.Duration(time.Hour),
		logger:    zap.NewNop(),
		allocator: allocator,
		leases:    newMemStore(),
	}
}

func newRequestWithIANA(iaid [4]byte) *transaction.Transaction {
	req := &wire.Message{MessageType: wire.MessageTypeRequest}
	req.Options.Add(&wire.OptClientID{DUID: &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{1, 2, 3, 4, 5, 6}}})
	req.Options.Add(&wire.OptIANA{IAID: iaid})
	return transaction.New(context.Background(), req, nil, nil, "eth0", time.Now().Add(time.Second))
}

func TestPoolAllocatesAddressForNewIANA(t *testing.T) {
	m := newTestModule(t)
	tx := newRequestWithIANA([4]byte{1, 1, 1, 1})
	tx.Response = wire.NewReplyFromMessage(tx.Request)

	require.NoError(t, m.Handle(tx, func() error { return nil }))

	ianas := tx.Response.Options.IANAs()
	require.Len(t, ianas, 1)
	addrs := ianas[0].Options.GetAll(wire.OptionIAAddr)
	require.Len(t, addrs, 1)
	assert.True(t, addrs[0].(*wire.OptIAAddress).IPv6Addr.Equal(net.ParseIP("2001:db8::10")))
}

func TestPoolReturnsNoAddrsAvailWhenExhausted(t *testing.T) {
	m := newTestModule(t)

	first := newRequestWithIANA([4]byte{1, 1, 1, 1})
	first.Response = wire.NewReplyFromMessage(first.Request)
	require.NoError(t, m.Handle(first, func() error { return nil }))

	second := newRequestWithIANA([4]byte{2, 2, 2, 2})
	second.Response = wire.NewReplyFromMessage(second.Request)
	require.NoError(t, m.Handle(second, func() error { return nil }))

	ianas := second.Response.Options.IANAs()
	require.Len(t, ianas, 1)
	status, ok := ianas[0].Options.Get(wire.OptionStatusCode).(*wire.OptStatusCode)
	require.True(t, ok)
	assert.Equal(t, wire.StatusNoAddrsAvail, status.StatusCode)
}

func TestPoolReusesExistingLeaseOnRenew(t *testing.T) {
	m := newTestModule(t)
	iaid := [4]byte{3, 3, 3, 3}

	first := newRequestWithIANA(iaid)
	first.Response = wire.NewReplyFromMessage(first.Request)
	require.NoError(t, m.Handle(first, func() error { return nil }))
	firstAddr := first.Response.Options.IANAs()[0].Options.GetAll(wire.OptionIAAddr)[0].(*wire.OptIAAddress).IPv6Addr

	renew := newRequestWithIANA(iaid)
	renew.Request.MessageType = wire.MessageTypeRenew
	renew.Response = wire.NewReplyFromMessage(renew.Request)
	require.NoError(t, m.Handle(renew, func() error { return nil }))
	renewedAddr := renew.Response.Options.IANAs()[0].Options.GetAll(wire.OptionIAAddr)[0].(*wire.OptIAAddress).IPv6Addr

	assert.True(t, firstAddr.Equal(renewedAddr), "renewing the same IAID must return the same address")
}
