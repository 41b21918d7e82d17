// Package prefix implements IA_PD prefix delegation (RFC 8415 section
// 6.3). One delegated prefix is stored per (DUID, IAID), so hint
// reconciliation collapses to "reuse the existing lease if the hint
// matches or is empty; otherwise allocate a fresh block" — the common
// case in practice, since most clients send an empty or length-only
// hint.
package prefix

import (
	"bytes"
	"net"
	"time"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/allocators/bitmap"
	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/store"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// Module allocates delegated prefixes for IA_PD containers out of a
// single base prefix.
type Module struct {
	Prefix         string         `json:"prefix"`
	AllocationSize int            `json:"allocationSize"`
	LeaseTime      caddy.Duration `json:"leaseTime,omitempty"`
	DBPath         string         `json:"dbPath"`

	logger    *zap.Logger
	allocator *bitmap.PrefixAllocator
	leases    store.Store
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.prefix",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	if m.LeaseTime <= 0 {
		m.LeaseTime = caddy.Duration(time.Hour)
	}
	_, base, err := net.ParseCIDR(m.Prefix)
	if err != nil {
		return err
	}
	allocator, err := bitmap.NewPrefixAllocator(base, m.AllocationSize)
	if err != nil {
		return err
	}
	m.allocator = allocator

	leases, err := store.OpenSQLiteStore(m.DBPath)
	if err != nil {
		return err
	}
	m.leases = leases
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	cid := t.Request.Options.ClientID()
	if cid == nil {
		return next()
	}
	duid := cid.DUID.ToBytes()
	resp := t.EnsureResponse()

	for _, iapd := range t.Request.Options.IAPD() {
		leaseTime := time.Duration(m.LeaseTime)
		respIAPD := &wire.OptIAPD{IAID: iapd.IAID, T1: uint32(leaseTime.Seconds() / 2), T2: uint32(leaseTime.Seconds() * 4 / 5)}

		lease, err := m.leases.Lookup(duid, iapd.IAID, store.LeaseKindPrefix)
		if err != nil {
			m.logger.Warn("prefix lease lookup failed", zap.Error(err))
		}

		hints := iapd.Options.Prefixes()
		wantsSpecific := false
		for _, h := range hints {
			if h.Prefix != nil && !h.Prefix.IP.Equal(net.IPv6zero) {
				wantsSpecific = true
			}
		}

		reuse := lease != nil && lease.Prefix != nil
		if reuse && wantsSpecific {
			reuse = false
			for _, h := range hints {
				if samePrefix(h.Prefix, lease.Prefix) {
					reuse = true
				}
			}
		}

		if !reuse {
			want := net.IPNet{}
			if wantsSpecific {
				want = *hints[0].Prefix
			}
			allocated, err := m.allocator.Allocate(want)
			if err != nil {
				m.logger.Debug("no prefix available", zap.Error(err))
				respIAPD.Options.Add(&wire.OptStatusCode{StatusCode: wire.StatusNoPrefixAvail})
				resp.Options.Add(respIAPD)
				continue
			}
			lease = &store.Lease{Kind: store.LeaseKindPrefix, DUID: duid, IAID: iapd.IAID, Prefix: allocated}
		}

		lease.Preferred, lease.Valid = leaseTime, leaseTime
		lease.ExpiresAt = time.Now().Add(leaseTime)
		if err := m.leases.Save(lease); err != nil {
			m.logger.Warn("prefix lease persist failed", zap.Error(err))
		}

		respIAPD.Options.Add(&wire.OptIAPrefix{
			PreferredLifetime: uint32(leaseTime.Seconds()),
			ValidLifetime:     uint32(leaseTime.Seconds()),
			Prefix:            lease.Prefix,
		})
		resp.Options.Add(respIAPD)
		m.logger.Info("delegated prefix", zap.Stringer("prefix", lease.Prefix), zap.Binary("duid", duid))
	}

	return next()
}

// samePrefix returns true if both prefixes are defined and equal. The
// empty prefix is equal to nothing, not even itself.
func samePrefix(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && bytes.Equal(a.Mask, b.Mask)
}

var _ handlers.HandlerModule = (*Module)(nil)
