// Package listener binds the UDP sockets a server listens on, joins
// the All-DHCP-Relay-Agents-and-Servers group (ff02::1:2) on sockets
// configured for multicast (the site-scoped All-DHCP-Servers group
// ff05::1:3 is not joined), and turns inbound datagrams into
// transaction.Transactions for the worker pool to run through a
// handlers.Pipeline. It also owns the bulk-leasequery TCP transport.
package listener

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv6"

	"github.com/hexasix/dhcp6d/stats"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// AllDHCPRelayAgentsAndServers is ff02::1:2, the link-scoped multicast
// group clients and relays send Solicit/Request/etc to, RFC 8415
// section 5.1.
var AllDHCPRelayAgentsAndServers = net.ParseIP("ff02::1:2")

// DefaultServerPort is UDP/547, the DHCPv6 server/relay port.
const DefaultServerPort = 547

// MaxDatagramSize bounds a single read; DHCPv6 messages over UDP never
// exceed the link MTU, and most real client messages are well under
// 1500 bytes. Oversized datagrams are truncated at this size; a UDP
// read cannot tell the caller the true size was larger, so a datagram
// near this limit should be treated with suspicion by handler logic.
const MaxDatagramSize = 4096

// DefaultDeadline bounds how long a single transaction's pipeline run
// may take once received, enforced by worker.Pool between phases.
const DefaultDeadline = 1 * time.Second

// Handle is invoked once per decoded, non-relay-wrapped inbound
// message. Implementations (worker.Pool) run it off the receive loop
// goroutine so one slow handler never blocks new reads.
type Handle func(t *transaction.Transaction, reply func([]byte) error)

// Listener owns one bound, multicast-joined UDP6 socket per configured
// interface/address pair.
type Listener struct {
	logger   *zap.Logger
	counters *stats.Counters
	deadline time.Duration
	conns    []*boundConn
}

type boundConn struct {
	iface string
	conn  *net.UDPConn
}

// Config is one socket to bind: Interface may be empty to bind on all
// interfaces (wildcard address), Address defaults to the DHCPv6
// server multicast/unicast address on DefaultServerPort.
type Config struct {
	Interface string
	Address   string // host[:port]; empty means "[::]:547"
	Multicast bool   // join AllDHCPRelayAgentsAndServers on Interface
}

// Open binds every configured socket, joining multicast groups as
// requested. deadline is the per-transaction budget stamped onto every
// Transaction at receive time; zero means DefaultDeadline. On any
// failure Open closes sockets already opened before returning the
// error.
func Open(logger *zap.Logger, counters *stats.Counters, deadline time.Duration, configs []Config) (*Listener, error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	l := &Listener{logger: logger, counters: counters, deadline: deadline}
	for _, c := range configs {
		conn, err := bind(c)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("listener: bind %+v: %w", c, err)
		}
		if c.Multicast {
			if err := joinMulticast(conn, c.Interface); err != nil {
				l.Close()
				return nil, fmt.Errorf("listener: join multicast on %s: %w", c.Interface, err)
			}
		}
		l.conns = append(l.conns, &boundConn{iface: c.Interface, conn: conn})
	}
	return l, nil
}

func bind(c Config) (*net.UDPConn, error) {
	addr := c.Address
	if addr == "" {
		addr = fmt.Sprintf("[::]:%d", DefaultServerPort)
	}
	udpAddr, err := net.ResolveUDPAddr("udp6", addr)
	if err != nil {
		return nil, err
	}
	if c.Interface != "" {
		iface, err := net.InterfaceByName(c.Interface)
		if err != nil {
			return nil, err
		}
		udpAddr.Zone = iface.Name
	}
	return net.ListenUDP("udp6", udpAddr)
}

func joinMulticast(conn *net.UDPConn, ifaceName string) error {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return err
	}
	pc := ipv6.NewPacketConn(conn)
	return pc.JoinGroup(iface, &net.UDPAddr{IP: AllDHCPRelayAgentsAndServers})
}

// Close shuts down every bound socket.
func (l *Listener) Close() {
	for _, bc := range l.conns {
		_ = bc.conn.Close()
	}
}

// Serve reads datagrams from every bound socket, one goroutine per
// socket, decoding each into a transaction.Transaction and handing it
// to handle. Serve blocks until every socket's read loop exits, which
// happens when Close is called concurrently.
func (l *Listener) Serve(handle Handle) error {
	errs := make(chan error, len(l.conns))
	for _, bc := range l.conns {
		bc := bc
		go func() { errs <- l.serveOne(bc, handle) }()
	}
	var first error
	for range l.conns {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *Listener) serveOne(bc *boundConn, handle Handle) error {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, peer, err := bc.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		msg, relayChain, peerAddr, err := decode(buf[:n])
		if err != nil {
			l.logger.Debug("dropping undecodable datagram", zap.Error(err), zap.String("interface", bc.iface))
			l.counters.IncDecodeFailure()
			continue
		}
		if msg == nil {
			l.counters.IncDroppedClientOnly()
			continue
		}
		if peerAddr == nil {
			peerAddr = peer.IP
		}
		t := transaction.New(context.Background(), msg, relayChain, peerAddr, bc.iface, time.Now().Add(l.deadline))
		reply := func(out []byte) error {
			_, err := bc.conn.WriteToUDP(out, peer)
			return err
		}
		handle(t, reply)
	}
}

// decode unwraps an inbound datagram into its innermost client message,
// the chain of relay wrappers it passed through (outermost first), and
// the address to treat as the transaction's peer: the innermost
// relay's peer-address for a relayed exchange, or nil for a direct one
// (the caller then falls back to the UDP source address). It returns
// (nil, nil, nil, nil) for a client-only message type the server must
// silently ignore.
func decode(data []byte) (*wire.Message, []*wire.RelayMessage, net.IP, error) {
	outer, err := wire.DecodeDHCPv6(data)
	if err != nil {
		return nil, nil, nil, err
	}
	var chain []*wire.RelayMessage
	cur := outer
	for cur.IsRelay() {
		rm := cur.(*wire.RelayMessage)
		chain = append(chain, rm)
		opt, ok := rm.Options.Get(wire.OptionRelayMessage).(*wire.OptRelayMessage)
		if !ok {
			return nil, nil, nil, fmt.Errorf("listener: relay message missing relay-message option")
		}
		cur = opt.Message
	}
	if wire.IsClientOnly(cur.Type()) {
		return nil, nil, nil, nil
	}
	inner, ok := cur.(*wire.Message)
	if !ok {
		return nil, nil, nil, fmt.Errorf("listener: relay chain did not terminate in a client message")
	}
	var peerAddr net.IP
	if len(chain) > 0 {
		innermost := chain[len(chain)-1]
		peerAddr = append(net.IP(nil), innermost.PeerAddr[:]...)
	}
	return inner, chain, peerAddr, nil
}
