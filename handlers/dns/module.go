// Package dns stamps the DNS Recursive Name Server and Domain Search
// List options (RFC 3646) onto responses whose option-request asks
// for them.
package dns

import (
	"net"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type Module struct {
	Servers []string `json:"servers,omitempty"`
	Domains []string `json:"domains,omitempty"`

	servers []net.IP
	logger  *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.dns",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	for _, s := range m.Servers {
		if ip := net.ParseIP(s); ip != nil {
			m.servers = append(m.servers, ip)
		}
	}
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	resp := t.EnsureResponse()
	if len(m.servers) > 0 && t.Request.Options.IsOptionRequested(wire.OptionDNSServers) {
		resp.Options.Set(&wire.OptDNSServers{Servers: m.servers})
	}
	if len(m.Domains) > 0 && t.Request.Options.IsOptionRequested(wire.OptionDomainSearchList) {
		resp.Options.Set(&wire.OptDomainSearchList{Domains: copyStrings(m.Domains)})
	}
	return next()
}

// copyStrings prevents downstream handlers from corrupting this
// handler's configuration by mutating the slice it hands out.
func copyStrings(original []string) []string {
	copied := make([]string, len(original))
	copy(copied, original)
	return copied
}

var _ handlers.HandlerModule = (*Module)(nil)
