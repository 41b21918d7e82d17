package dns

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

func newTxRequesting(codes ...wire.OptionCode) *transaction.Transaction {
	req := &wire.Message{MessageType: wire.MessageTypeInformationRequest}
	req.Options.Add(&wire.OptOptionRequest{Requested: codes})
	tx := transaction.New(context.Background(), req, nil, nil, "eth0", time.Now().Add(time.Second))
	tx.Response = wire.NewReplyFromMessage(req)
	return tx
}

func TestDNSStampsServersWhenRequested(t *testing.T) {
	m := &Module{servers: []net.IP{net.ParseIP("2001:db8::53")}, logger: zap.NewNop()}
	tx := newTxRequesting(wire.OptionDNSServers)

	require.NoError(t, m.Handle(tx, func() error { return nil }))

	got, ok := tx.Response.Options.Get(wire.OptionDNSServers).(*wire.OptDNSServers)
	require.True(t, ok)
	require.Len(t, got.Servers, 1)
	assert.True(t, got.Servers[0].Equal(net.ParseIP("2001:db8::53")))
}

func TestDNSOmitsServersWhenNotRequested(t *testing.T) {
	m := &Module{servers: []net.IP{net.ParseIP("2001:db8::53")}, logger: zap.NewNop()}
	tx := newTxRequesting(wire.OptionDomainSearchList)

	require.NoError(t, m.Handle(tx, func() error { return nil }))
	assert.False(t, tx.Response.Options.Has(wire.OptionDNSServers))
}

func TestDNSStampsDomainsWhenRequested(t *testing.T) {
	m := &Module{Domains: []string{"example.com"}, logger: zap.NewNop()}
	tx := newTxRequesting(wire.OptionDomainSearchList)

	require.NoError(t, m.Handle(tx, func() error { return nil }))

	got, ok := tx.Response.Options.Get(wire.OptionDomainSearchList).(*wire.OptDomainSearchList)
	require.True(t, ok)
	assert.Equal(t, []string{"example.com"}, got.Domains)
}
