package filter

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

func newTx(iface string, peer net.IP) *transaction.Transaction {
	req := &wire.Message{MessageType: wire.MessageTypeSolicit}
	return transaction.New(context.Background(), req, nil, peer, iface, time.Now().Add(time.Second))
}

func TestAlwaysMatch(t *testing.T) {
	assert.True(t, AlwaysMatch{}.Match(newTx("eth0", nil)))
}

func TestNotInverts(t *testing.T) {
	f := Not{Inner: AlwaysMatch{}}
	assert.False(t, f.Match(newTx("eth0", nil)))
}

func TestAllRequiresEveryFilter(t *testing.T) {
	tx := newTx("eth0", nil)
	f := All{AlwaysMatch{}, InterfaceMatch{Interfaces: []string{"eth0"}}}
	assert.True(t, f.Match(tx))

	f = All{AlwaysMatch{}, InterfaceMatch{Interfaces: []string{"eth1"}}}
	assert.False(t, f.Match(tx))
}

func TestAnyRequiresOneFilter(t *testing.T) {
	tx := newTx("eth0", nil)
	f := Any{InterfaceMatch{Interfaces: []string{"eth1"}}, InterfaceMatch{Interfaces: []string{"eth0"}}}
	assert.True(t, f.Match(tx))

	f = Any{InterfaceMatch{Interfaces: []string{"eth1"}}, InterfaceMatch{Interfaces: []string{"eth2"}}}
	assert.False(t, f.Match(tx))
}

func TestMarkedWith(t *testing.T) {
	tx := newTx("eth0", nil)
	f := MarkedWith{Name: "trusted-relay"}
	assert.False(t, f.Match(tx))

	tx.Mark("trusted-relay")
	assert.True(t, f.Match(tx))
}

func TestInterfaceMatch(t *testing.T) {
	f := InterfaceMatch{Interfaces: []string{"eth0", "eth1"}}
	assert.True(t, f.Match(newTx("eth1", nil)))
	assert.False(t, f.Match(newTx("eth2", nil)))
}

func TestSubnetMatch(t *testing.T) {
	_, subnet, err := net.ParseCIDR("2001:db8::/64")
	if err != nil {
		t.Fatal(err)
	}
	f := SubnetMatch{Subnets: []*net.IPNet{subnet}}
	assert.True(t, f.Match(newTx("eth0", net.ParseIP("2001:db8::1"))))
	assert.False(t, f.Match(newTx("eth0", net.ParseIP("2001:db9::1"))))
}

func TestMessageTypeMatch(t *testing.T) {
	f := MessageTypeMatch{Types: []wire.MessageType{wire.MessageTypeSolicit, wire.MessageTypeRequest}}
	assert.True(t, f.Match(newTx("eth0", nil)))

	f = MessageTypeMatch{Types: []wire.MessageType{wire.MessageTypeRenew}}
	assert.False(t, f.Match(newTx("eth0", nil)))
}
