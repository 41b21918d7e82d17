package listener

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/stats"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// BulkListener accepts the dedicated TCP connections bulk leasequery
// (RFC 5460) uses: each connection carries a stream of DHCPv6 messages
// framed by a 2-byte length prefix, decoded with wire.DecodeBulkFrame
// and answered with wire.EncodeBulkFrame. The message semantics are
// the same as a unicast UDP Leasequery; only the transport and framing
// differ, so each framed request goes through the same Handle callback
// the UDP path uses.
type BulkListener struct {
	logger   *zap.Logger
	counters *stats.Counters
	deadline time.Duration
	ln       net.Listener
}

// OpenBulk binds the bulk-leasequery TCP socket at addr
// (host[:port]). deadline has the same meaning as in Open.
func OpenBulk(logger *zap.Logger, counters *stats.Counters, deadline time.Duration, addr string) (*BulkListener, error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ln, err := net.Listen("tcp6", addr)
	if err != nil {
		return nil, fmt.Errorf("listener: bulk leasequery listen %s: %w", addr, err)
	}
	return &BulkListener{logger: logger, counters: counters, deadline: deadline, ln: ln}, nil
}

// Close stops accepting bulk-leasequery connections. In-flight
// connections are closed by their own read loops when the peer hangs
// up or a frame fails to decode.
func (b *BulkListener) Close() error { return b.ln.Close() }

// Serve accepts connections until Close is called. Each connection
// gets its own goroutine; frames within a connection are submitted in
// order, but replies may interleave across queries since the worker
// pool answers them concurrently, which RFC 5460 section 6.1 permits.
func (b *BulkListener) Serve(handle Handle) error {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return err
		}
		go b.serveConn(conn, handle)
	}
}

func (b *BulkListener) serveConn(conn net.Conn, handle Handle) {
	defer conn.Close()

	// Replies come from worker goroutines; one connection must not
	// interleave two frames' bytes.
	var writeMu sync.Mutex
	reply := func(out []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := conn.Write(out)
		return err
	}

	buf := make([]byte, 0, MaxDatagramSize)
	chunk := make([]byte, MaxDatagramSize)
	for {
		n, err := conn.Read(chunk)
		if err != nil {
			return
		}
		buf = append(buf, chunk[:n]...)

		for {
			msg, consumed, err := wire.DecodeBulkFrame(buf)
			if err != nil {
				b.logger.Debug("closing bulk leasequery connection on undecodable frame", zap.Error(err))
				b.counters.IncDecodeFailure()
				return
			}
			if msg == nil {
				break
			}
			buf = buf[consumed:]
			b.dispatch(msg, conn, handle, reply)
		}
	}
}

func (b *BulkListener) dispatch(msg wire.DHCPv6, conn net.Conn, handle Handle, rawReply func([]byte) error) {
	if wire.IsClientOnly(msg.Type()) {
		b.counters.IncDroppedClientOnly()
		return
	}
	inner, ok := msg.(*wire.Message)
	if !ok {
		// Relay-wrapped messages have no business on a leasequery
		// connection.
		b.counters.IncDecodeFailure()
		return
	}

	var peer net.IP
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		peer = tcpAddr.IP
	}
	t := transaction.New(context.Background(), inner, nil, peer, "", time.Now().Add(b.deadline))
	handle(t, func(out []byte) error {
		framed := make([]byte, 2+len(out))
		binary.BigEndian.PutUint16(framed[0:2], uint16(len(out)))
		copy(framed[2:], out)
		return rawReply(framed)
	})
}
