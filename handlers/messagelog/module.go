// Package messagelog adapts handlers/messagelog/module.go: instead of
// appending plain-text summaries to a raw *os.File, it logs each
// transaction through zap, matching the rest of the ambient stack.
package messagelog

import (
	"encoding/hex"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/transaction"
)

type Module struct {
	// Level selects the zap level messages are logged at. Defaults to
	// "info" when empty.
	Level string `json:"level,omitempty"`

	logger *zap.Logger
	log    func(string, ...zap.Field)
}

func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.messagelog",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	switch m.Level {
	case "debug":
		m.log = m.logger.Debug
	case "warn":
		m.log = m.logger.Warn
	default:
		m.log = m.logger.Info
	}
	return nil
}

// RunOnDrop keeps this handler in the post phase for dropped
// transactions, so the log records every inbound message, answered or
// not.
func (m *Module) RunOnDrop() bool { return true }

func (m *Module) Handle(t *transaction.Transaction, next func() error) error {
	fields := []zap.Field{
		zap.Uint8("messageType", uint8(t.Request.MessageType)),
		zap.String("transactionID", hex.EncodeToString(t.Request.TransactionID[:])),
	}
	if t.Response != nil {
		fields = append(fields, zap.Uint8("responseType", uint8(t.Response.MessageType)))
	}
	m.log("dhcpv6 transaction", fields...)
	return next()
}

var _ handlers.HandlerModule = (*Module)(nil)
