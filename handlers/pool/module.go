// Package pool implements IA_NA/IA_TA address allocation: a
// DUID-keyed lookup-then-allocate loop over a bitmap allocator, with
// leases persisted through store.Store so bindings survive restarts.
package pool

import (
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

// Module allocates addresses for IA_NA (and, identically, IA_TA)
// containers out of a single contiguous /64 range.
type Module struct {
	StartIP   string         `json:"startIP"`
	EndIP     string         `json:"endIP"`
	LeaseTime caddy.Duration `json:"leaseTime,omitempty"`
	DBPath    string         `json:"dbPath"`
	// RapidCommit commits an allocation immediately on a Solicit that
	// carries the rapid-commit option, letting the mandatory post
	// handler turn the Advertise into a Reply (RFC 8415 section 18.3.1).
	RapidCommit bool `json:"rapidCommit,omitempty"`

	logger    *zap.Logger
	allocator *bitmap.AddressAllocator
	leases    store.Store
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.pool",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	if m.LeaseTime <= 0 {
		m.LeaseTime = caddy.Duration(time.Hour)
	}

	start := net.ParseIP(m.StartIP)
	end := net.ParseIP(m.EndIP)
	allocator, err := bitmap.NewAddressAllocator(start, end)
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
	allocated := 0

	for _, iana := range t.Request.Options.IANAs() {
		leaseTime := time.Duration(m.LeaseTime)

		lease, err := m.leases.Lookup(duid, iana.IAID, store.LeaseKindAddress)
		if err != nil {
			m.logger.Warn("lease lookup failed", zap.Error(err))
			continue
		}
		if lease == nil {
			allocated, err := m.allocator.Allocate(net.IPNet{})
			if err != nil {
				m.logger.Debug("no address available", zap.Error(err))
				respOpts := &wire.OptIANA{IAID: iana.IAID}
				respOpts.Options.Add(&wire.OptStatusCode{StatusCode: wire.StatusNoAddrsAvail})
				resp.Options.Add(respOpts)
				continue
			}
			lease = &store.Lease{
				Kind: store.LeaseKindAddress,
				DUID: duid,
				IAID: iana.IAID,
				IP:   allocated.IP,
			}
		}
		lease.Preferred = leaseTime
		lease.Valid = leaseTime
		lease.ExpiresAt = time.Now().Add(leaseTime)
		if err := m.leases.Save(lease); err != nil {
			m.logger.Warn("lease persist failed", zap.Error(err))
		}

		respIANA := &wire.OptIANA{IAID: iana.IAID, T1: uint32(leaseTime.Seconds() / 2), T2: uint32(leaseTime.Seconds() * 4 / 5)}
		respIANA.Options.Add(&wire.OptIAAddress{
			IPv6Addr:          lease.IP,
			PreferredLifetime: uint32(leaseTime.Seconds()),
			ValidLifetime:     uint32(leaseTime.Seconds()),
		})
		resp.Options.Add(respIANA)
		allocated++
		m.logger.Info("allocated address", zap.Stringer("ip", lease.IP), zap.Binary("duid", duid))
	}

	if m.RapidCommit && allocated > 0 &&
		t.Request.MessageType == wire.MessageTypeSolicit &&
		t.Request.Options.Has(wire.OptionRapidCommit) {
		t.Mark("rapid-commit")
	}

	for _, iata := range t.Request.Options.GetAll(wire.OptionIATA) {
		ta := iata.(*wire.OptIATA)
		lease, err := m.leases.Lookup(duid, ta.IAID, store.LeaseKindAddress)
		if err != nil {
			m.logger.Warn("lease lookup failed", zap.Error(err))
			continue
		}
		leaseTime := time.Duration(m.LeaseTime)
		if lease == nil {
			allocated, err := m.allocator.Allocate(net.IPNet{})
			if err != nil {
				respIATA := &wire.OptIATA{IAID: ta.IAID}
				respIATA.Options.Add(&wire.OptStatusCode{StatusCode: wire.StatusNoAddrsAvail})
				resp.Options.Add(respIATA)
				continue
			}
			lease = &store.Lease{Kind: store.LeaseKindAddress, DUID: duid, IAID: ta.IAID, IP: allocated.IP}
		}
		lease.Preferred, lease.Valid = leaseTime, leaseTime
		lease.ExpiresAt = time.Now().Add(leaseTime)
		_ = m.leases.Save(lease)

		respIATA := &wire.OptIATA{IAID: ta.IAID}
		respIATA.Options.Add(&wire.OptIAAddress{
			IPv6Addr:          lease.IP,
			PreferredLifetime: uint32(leaseTime.Seconds()),
			ValidLifetime:     uint32(leaseTime.Seconds()),
		})
		resp.Options.Add(respIATA)
	}

	return next()
}

// Interfaces guards
var _ handlers.HandlerModule = (*Module)(nil)
