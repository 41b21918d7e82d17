package listener

import (
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/stats"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

func TestBulkListenerRoundTripsFramedLeasequery(t *testing.T) {
	b, err := OpenBulk(zap.NewNop(), stats.NewCounters(nil), time.Second, "[::1]:0")
	require.NoError(t, err)
	defer b.Close()

	// Answer every query immediately with a framed Leasequery-Reply.
	go func() {
		_ = b.Serve(func(tx *transaction.Transaction, reply func([]byte) error) {
			resp := &wire.Message{MessageType: wire.MessageTypeLeasequeryReply, TransactionID: tx.Request.TransactionID}
			_ = reply(resp.ToBytes())
		})
	}()

	conn, err := net.Dial("tcp6", b.ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	query := &wire.Message{MessageType: wire.MessageTypeLeasequery, TransactionID: [3]byte{7, 8, 9}}
	query.Options.Add(&wire.OptLQQuery{QueryType: wire.LQQueryByAddress, LinkAddress: net.IPv6zero})
	_, err = conn.Write(wire.EncodeBulkFrame(query))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	hdr := make([]byte, 2)
	_, err = io.ReadFull(conn, hdr)
	require.NoError(t, err)
	body := make([]byte, int(hdr[0])<<8|int(hdr[1]))
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)

	msg, err := wire.DecodeDHCPv6(body)
	require.NoError(t, err)
	assert.Equal(t, wire.MessageTypeLeasequeryReply, msg.Type())
	assert.Equal(t, [3]byte{7, 8, 9}, msg.(*wire.Message).TransactionID)
}

func TestBulkListenerClosesConnectionOnBadFrame(t *testing.T) {
	b, err := OpenBulk(zap.NewNop(), stats.NewCounters(nil), time.Second, "[::1]:0")
	require.NoError(t, err)
	defer b.Close()

	go func() {
		_ = b.Serve(func(tx *transaction.Transaction, reply func([]byte) error) {})
	}()

	conn, err := net.Dial("tcp6", b.ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// A frame whose payload claims an unknown message type.
	_, err = conn.Write([]byte{0x00, 0x04, 0x63, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF, "the listener hangs up rather than answering a malformed stream")
}
