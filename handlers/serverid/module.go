// Package serverid ports handlers/serverid/module.go: a configurable
// handler that derives this server's DUID from its config and stamps
// it into every response, matching RFC 8415 section 16's per-message
// Server Identifier presence rules. The app-level server_duid setting
// already seeds the mandatory built-in pre/post handlers with the same
// rules, so most deployments never mention this module in their filter
// tree — it exists for setups that want the server-id logic scoped by
// filter like every other handler, for instance a distinct DUID per
// interface.
package serverid

import (
	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type Module struct {
	Duid string `json:"duid,omitempty"`

	duid   wire.DUID
	logger *zap.Logger
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.serverid",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	if m.Duid == "" {
		return nil
	}
	duid, err := wire.ParseDUID(m.Duid)
	if err != nil {
		return err
	}
	m.duid = duid
	return nil
}

// DUID returns the configured server DUID.
func (m *Module) DUID() wire.DUID { return m.duid }

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	if m.duid == nil {
		return next()
	}

	if sid := t.Request.Options.ServerID(); sid != nil {
		switch t.Request.MessageType {
		case wire.MessageTypeSolicit, wire.MessageTypeConfirm, wire.MessageTypeRebind:
			t.SetDisposition(transaction.Drop)
			return nil
		}
		if !sid.DUID.Equal(m.duid) {
			m.logger.Info("requested server id does not match this server's id")
			t.SetDisposition(transaction.Drop)
			return nil
		}
	} else {
		switch t.Request.MessageType {
		case wire.MessageTypeRequest, wire.MessageTypeRenew, wire.MessageTypeDecline, wire.MessageTypeRelease:
			t.SetDisposition(transaction.Drop)
			return nil
		}
	}

	resp := t.EnsureResponse()
	resp.Options.Set(&wire.OptServerID{DUID: m.duid})
	return next()
}

var _ handlers.HandlerModule = (*Module)(nil)
