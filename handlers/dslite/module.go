// Package dslite stamps the DS-Lite AFTR Name option (RFC 6334),
// naming the tunnel concentrator a dual-stack-lite CPE should use.
package dslite

import (
	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type Module struct {
	AFTRName string `json:"aftrName,omitempty"`

	logger *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.dslite",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	if m.AFTRName != "" && t.Request.Options.IsOptionRequested(wire.OptionAFTRName) {
		t.EnsureResponse().Options.Set(&wire.OptAFTRName{Name: m.AFTRName})
	}
	return next()
}

var _ handlers.HandlerModule = (*Module)(nil)
