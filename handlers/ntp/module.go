// Package ntp implements the NTP Server option (RFC 5908) and the
// legacy SNTP Servers option (RFC 4075).
package ntp

import (
	"net"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type Module struct {
	ServerAddresses []string `json:"serverAddresses,omitempty"`
	ServerFQDNs     []string `json:"serverFQDNs,omitempty"`
	// LegacySNTP additionally answers the obsolete SNTP Servers option
	// with ServerAddresses, for clients that predate RFC 5908.
	LegacySNTP bool `json:"legacySNTP,omitempty"`

	addresses []net.IP
	logger    *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.ntp",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	for _, a := range m.ServerAddresses {
		if ip := net.ParseIP(a); ip != nil {
			m.addresses = append(m.addresses, ip)
		}
	}
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	resp := t.EnsureResponse()
	if t.Request.Options.IsOptionRequested(wire.OptionNTPServer) {
		opt := &wire.OptNTPServer{}
		for _, ip := range m.addresses {
			opt.Suboptions = append(opt.Suboptions, wire.NTPSuboption{Code: wire.NTPSuboptionServerAddr, Address: ip})
		}
		for _, fqdn := range m.ServerFQDNs {
			opt.Suboptions = append(opt.Suboptions, wire.NTPSuboption{Code: wire.NTPSuboptionServerFQDN, FQDN: fqdn})
		}
		if len(opt.Suboptions) > 0 {
			resp.Options.Set(opt)
		}
	}
	if m.LegacySNTP && len(m.addresses) > 0 && t.Request.Options.IsOptionRequested(wire.OptionSNTPServers) {
		resp.Options.Set(&wire.OptSNTPServers{Servers: m.addresses})
	}
	return next()
}

var _ handlers.HandlerModule = (*Module)(nil)
