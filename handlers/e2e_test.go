package handlers

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/filter"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// allocFake stands in for an address-pool handler: it answers every
// IA_NA in the request with a fixed address, the way the pool module
// does with a one-entry range.
type allocFake struct{ addr net.IP }

func (h *allocFake) Handle(t *transaction.Transaction, next func() error) error {
	resp := t.EnsureResponse()
	for _, iana := range t.Request.Options.IANAs() {
		out := &wire.OptIANA{IAID: iana.IAID, T1: 1800, T2: 2880}
		out.Options.Add(&wire.OptIAAddress{IPv6Addr: h.addr, PreferredLifetime: 3600, ValidLifetime: 7200})
		resp.Options.Add(out)
	}
	return next()
}

func fullPipeline(serverDUID wire.DUID, extra ...Handler) *Pipeline {
	var entries []Entry
	for _, h := range BuiltinPreHandlers(serverDUID, zap.NewNop()) {
		entries = append(entries, Entry{Filter: filter.AlwaysMatch{}, Handler: h, Phase: PhasePre})
	}
	for _, h := range extra {
		entries = append(entries, Entry{Filter: filter.AlwaysMatch{}, Handler: h, Phase: PhaseHandle})
	}
	for _, h := range BuiltinPostHandlers(serverDUID) {
		entries = append(entries, Entry{Filter: filter.AlwaysMatch{}, Handler: h, Phase: PhasePost})
	}
	return NewPipeline(entries)
}

func TestSolicitProducesAdvertiseWithLease(t *testing.T) {
	serverDUID := &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	clientDUID := &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}}
	p := fullPipeline(serverDUID, &allocFake{addr: net.ParseIP("2001:db8::1")})

	req := &wire.Message{MessageType: wire.MessageTypeSolicit, TransactionID: [3]byte{0xaa, 0xbb, 0xcc}}
	req.Options.Add(&wire.OptClientID{DUID: clientDUID})
	req.Options.Add(&wire.OptIANA{IAID: [4]byte{0, 0, 0, 1}})
	tx := transaction.New(context.Background(), req, nil, net.ParseIP("fe80::1"), "eth0", time.Now().Add(time.Second))

	require.NoError(t, p.Run(tx))
	require.NotNil(t, tx.Response)

	assert.Equal(t, wire.MessageTypeAdvertise, tx.Response.MessageType)
	assert.Equal(t, req.TransactionID, tx.Response.TransactionID)

	sids := tx.Response.Options.GetAll(wire.OptionServerID)
	require.Len(t, sids, 1, "exactly one server-id per emitted response")
	assert.True(t, sids[0].(*wire.OptServerID).DUID.Equal(serverDUID))

	cid := tx.Response.Options.ClientID()
	require.NotNil(t, cid)
	assert.True(t, cid.DUID.Equal(clientDUID))

	ianas := tx.Response.Options.IANAs()
	require.Len(t, ianas, 1)
	assert.Equal(t, uint32(1800), ianas[0].T1)
	assert.Equal(t, uint32(2880), ianas[0].T2)
	addr := ianas[0].Options.GetAll(wire.OptionIAAddr)[0].(*wire.OptIAAddress)
	assert.True(t, addr.IPv6Addr.Equal(net.ParseIP("2001:db8::1")))
	assert.Equal(t, uint32(3600), addr.PreferredLifetime)
	assert.Equal(t, uint32(7200), addr.ValidLifetime)

	require.NoError(t, tx.Response.Validate())
}

func TestRelayedSolicitIsReframedAsRelayReply(t *testing.T) {
	serverDUID := &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	p := fullPipeline(serverDUID, &allocFake{addr: net.ParseIP("2001:db8::1")})

	req := &wire.Message{MessageType: wire.MessageTypeSolicit, TransactionID: [3]byte{0xaa, 0xbb, 0xcc}}
	req.Options.Add(&wire.OptClientID{DUID: &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{0, 1, 2, 3, 4, 5}}})
	req.Options.Add(&wire.OptIANA{IAID: [4]byte{0, 0, 0, 1}})

	relay := &wire.RelayMessage{MessageType: wire.MessageTypeRelayForw, HopCount: 0}
	copy(relay.LinkAddr[:], net.ParseIP("2001:db8::ffff").To16())
	copy(relay.PeerAddr[:], net.ParseIP("fe80::1").To16())
	relay.Options.Add(&wire.OptRelayMessage{Message: req})

	tx := transaction.New(context.Background(), req, []*wire.RelayMessage{relay}, net.ParseIP("fe80::1"), "eth0", time.Now().Add(time.Second))
	require.NoError(t, p.Run(tx))

	final, ok := tx.Get("final_response")
	require.True(t, ok, "a relayed transaction must produce a reframed relay reply")
	reply, ok := final.(*wire.RelayMessage)
	require.True(t, ok)
	assert.Equal(t, wire.MessageTypeRelayRepl, reply.MessageType)
	assert.Equal(t, relay.HopCount, reply.HopCount)
	assert.Equal(t, relay.LinkAddr, reply.LinkAddr)
	assert.Equal(t, relay.PeerAddr, reply.PeerAddr)

	inner, err := wire.GetInnerMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, wire.MessageTypeAdvertise, inner.MessageType)
	assert.Equal(t, req.TransactionID, inner.TransactionID)
}

func TestRapidCommitSolicitProducesReplyEndToEnd(t *testing.T) {
	serverDUID := &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	commit := &markingHandler{mark: "rapid-commit"}
	p := fullPipeline(serverDUID, &allocFake{addr: net.ParseIP("2001:db8::1")}, commit)

	req := &wire.Message{MessageType: wire.MessageTypeSolicit, TransactionID: [3]byte{1, 2, 3}}
	req.Options.Add(&wire.OptClientID{DUID: &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: []byte{0, 1, 2, 3, 4, 5}}})
	req.Options.Add(&wire.OptRapidCommit{})
	req.Options.Add(&wire.OptIANA{IAID: [4]byte{0, 0, 0, 1}})

	tx := transaction.New(context.Background(), req, nil, net.ParseIP("fe80::1"), "eth0", time.Now().Add(time.Second))
	require.NoError(t, p.Run(tx))

	assert.Equal(t, wire.MessageTypeReply, tx.Response.MessageType)
	assert.True(t, tx.Response.Options.Has(wire.OptionRapidCommit))
}

type markingHandler struct{ mark string }

func (h *markingHandler) Handle(t *transaction.Transaction, next func() error) error {
	t.Mark(h.mark)
	return next()
}
