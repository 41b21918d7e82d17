// Package leasequery answers Leasequery requests (RFC 5007) against a
// store.Store. It handles the by-address and by-client-id query types;
// any other query type, including RFC 5460's by-remote-id and
// by-link-layer-address, gets a NotConfigured status. The TCP framing
// and connection handling for bulk leasequery lives in the listener
// package, which runs each framed query through the same pipeline as a
// UDP Leasequery; every query gets a single Leasequery-Reply, and no
// LEASEQUERY-DATA/LEASEQUERY-DONE messages are sent.
package leasequery

import (
	"time"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/store"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// Module answers Leasequery requests directly from a configured store.
type Module struct {
	// DBPath is the lease database this handler queries, normally the
	// same file the pool/prefix handlers write to.
	DBPath string `json:"dbPath,omitempty"`

	// Store overrides the DBPath-opened store; tests inject a fake here.
	Store store.Store `json:"-"`

	logger *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.leasequery",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	if m.Store == nil && m.DBPath != "" {
		leases, err := store.OpenSQLiteStore(m.DBPath)
		if err != nil {
			return err
		}
		m.Store = leases
	}
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	if t.Request.MessageType != wire.MessageTypeLeasequery {
		return next()
	}
	if m.Store == nil {
		t.SetDisposition(transaction.Drop)
		return nil
	}

	q, ok := t.Request.Options.Get(wire.OptionLQQuery).(*wire.OptLQQuery)
	if !ok {
		return m.reject(t, wire.StatusMalformedQuery)
	}

	var leases []*store.Lease
	var err error
	switch q.QueryType {
	case wire.LQQueryByAddress:
		addr, ok := q.QueryOptions.Get(wire.OptionIAAddr).(*wire.OptIAAddress)
		if !ok {
			return m.reject(t, wire.StatusMalformedQuery)
		}
		var lease *store.Lease
		lease, err = m.Store.LookupByAddress(addr.IPv6Addr)
		if lease != nil {
			leases = []*store.Lease{lease}
		}
	case wire.LQQueryByClientID:
		cid, ok := q.QueryOptions.Get(wire.OptionClientID).(*wire.OptClientID)
		if !ok {
			return m.reject(t, wire.StatusMalformedQuery)
		}
		leases, err = m.Store.LookupAll(cid.DUID.ToBytes())
	default:
		return m.reject(t, wire.StatusNotConfigured)
	}
	if err != nil {
		m.logger.Warn("leasequery lookup failed", zap.Error(err))
		return m.reject(t, wire.StatusUnspecFail)
	}

	resp := leasequeryReply(t.Request)
	if len(leases) == 0 {
		resp.Options.Set(&wire.OptStatusCode{StatusCode: wire.StatusSuccess})
		t.Response = resp
		t.SetDisposition(transaction.Respond)
		return nil
	}
	resp.Options.Add(clientDataFor(leases))
	t.Response = resp
	t.SetDisposition(transaction.Respond)
	return nil
}

func (m *Module) reject(t *transaction.Transaction, status wire.StatusCode) error {
	resp := leasequeryReply(t.Request)
	resp.Options.Set(&wire.OptStatusCode{StatusCode: status})
	t.Response = resp
	t.SetDisposition(transaction.Respond)
	return nil
}

func leasequeryReply(req *wire.Message) *wire.Message {
	return &wire.Message{MessageType: wire.MessageTypeLeasequeryReply, TransactionID: req.TransactionID}
}

// clientDataFor aggregates one client's leases into the single
// OPTION_CLIENT_DATA a leasequery-reply carries, per RFC 5007 section
// 4.1.2.5: client-id, every bound address and prefix, and the
// most-recently-confirmed CLT-time across the set.
func clientDataFor(leases []*store.Lease) *wire.OptClientData {
	cd := &wire.OptClientData{}
	if duid, err := wire.DecodeDUID(leases[0].DUID); err == nil {
		cd.Options.Add(&wire.OptClientID{DUID: duid})
	}
	cltTime := int64(-1)
	for _, lease := range leases {
		switch lease.Kind {
		case store.LeaseKindAddress:
			cd.Options.Add(&wire.OptIAAddress{
				IPv6Addr:          lease.IP,
				PreferredLifetime: uint32(lease.Preferred.Seconds()),
				ValidLifetime:     uint32(lease.Valid.Seconds()),
			})
		case store.LeaseKindPrefix:
			cd.Options.Add(&wire.OptIAPrefix{
				PreferredLifetime: uint32(lease.Preferred.Seconds()),
				ValidLifetime:     uint32(lease.Valid.Seconds()),
				Prefix:            lease.Prefix,
			})
		}
		if elapsed := cltTimeSeconds(lease); cltTime < 0 || elapsed < cltTime {
			cltTime = elapsed
		}
	}
	cd.Options.Add(&wire.OptCLTTime{Seconds: uint32(cltTime)})
	return cd
}

// cltTimeSeconds is CLT_TIME: seconds elapsed since the lease was last
// confirmed with the client, derived from how much of its valid
// lifetime remains until ExpiresAt.
func cltTimeSeconds(lease *store.Lease) int64 {
	remaining := time.Until(lease.ExpiresAt)
	elapsed := lease.Valid - remaining
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed.Seconds())
}

var _ handlers.HandlerModule = (*Module)(nil)
