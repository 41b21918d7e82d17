// Package sip implements the SIP Servers options (RFC 3319), in the
// same option-requested-then-stamp shape as the dns handler.
package sip

import (
	"net"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type Module struct {
	Domains   []string `json:"domains,omitempty"`
	Addresses []string `json:"addresses,omitempty"`

	addresses []net.IP
	logger    *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.sip",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	for _, a := range m.Addresses {
		if ip := net.ParseIP(a); ip != nil {
			m.addresses = append(m.addresses, ip)
		}
	}
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	resp := t.EnsureResponse()
	if len(m.Domains) > 0 && t.Request.Options.IsOptionRequested(wire.OptionSIPServersDomainList) {
		resp.Options.Set(&wire.OptSIPServersDomainList{Domains: m.Domains})
	}
	if len(m.addresses) > 0 && t.Request.Options.IsOptionRequested(wire.OptionSIPServersAddressList) {
		resp.Options.Set(&wire.OptSIPServersAddressList{Addresses: m.addresses})
	}
	return next()
}

var _ handlers.HandlerModule = (*Module)(nil)
