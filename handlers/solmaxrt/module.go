// Package solmaxrt stamps the SOL_MAX_RT and INF_MAX_RT options
// (RFC 7083) onto responses when the client requests them, tuning how
// aggressively clients retransmit Solicit and Information-Request.
package solmaxrt

import (
	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type Module struct {
	SolMaxRT uint32 `json:"solMaxRT,omitempty"`
	InfMaxRT uint32 `json:"infMaxRT,omitempty"`

	logger *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.solmaxrt",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	return nil
}

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	resp := t.EnsureResponse()
	if m.SolMaxRT != 0 && t.Request.Options.IsOptionRequested(wire.OptionSolMaxRT) {
		resp.Options.Set(&wire.OptSolMaxRT{Seconds: m.SolMaxRT})
	}
	if m.InfMaxRT != 0 && t.Request.Options.IsOptionRequested(wire.OptionInfMaxRT) {
		resp.Options.Set(&wire.OptInfMaxRT{Seconds: m.InfMaxRT})
	}
	return next()
}

var _ handlers.HandlerModule = (*Module)(nil)
