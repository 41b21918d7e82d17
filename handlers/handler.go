// Package handlers defines the Handler interface and the three-phase
// pipeline that runs a compiled filter tree's handlers against each
// transaction.
package handlers

import (
	"github.com/caddyserver/caddy/v2"

	"github.com/hexasix/dhcp6d/transaction"
)

// Phase names where in a transaction's lifecycle a handler runs:
// pre (classification/marking, before any response exists), handle
// (the bulk of option and lease logic), post (mandatory invariant
// enforcement, response finalization).
type Phase int

const (
	PhasePre Phase = iota
	PhaseHandle
	PhasePost
)

// Handler is a single step in the pipeline for one phase. The next
// handler will never be nil, but may be a no-op; handlers acting as
// middleware call next to propagate the transaction down the chain,
// while handlers that fully decide the transaction's outcome (drop,
// or no more options to add) need not call it.
//
// If a handler encounters an error, it returns it unchanged rather
// than re-wrapping; worker.Pool logs it and treats the transaction as
// dropped, since no partial response is better than a wrong one.
type Handler interface {
	Handle(t *transaction.Transaction, next func() error) error
}

// HandlerModule is a Handler that is also a caddy.Module and
// caddy.Provisioner; every concrete handler package provides one, the
// dhcp6d package's init() (app.go) registers it via
// caddy.RegisterModule, and it is loaded from the config tree by id.
type HandlerModule interface {
	caddy.Module
	caddy.Provisioner
	Handler
}

// Precedence orders handlers that share a phase and filter scope.
// Handlers without an opinion return 0; built-in post-handlers use
// negative values to run before configured post-handlers, and positive
// values to run after (see builtin_post.go).
type Precedence interface {
	Precedence() int
}

// RunOnDrop marks a post-phase handler that must still run after a
// transaction has been dropped — counters, accounting, message
// logging. Once disposition is Drop, the post phase runs only
// handlers whose RunOnDrop returns true; everything else (response
// finalization, store writes) is skipped, since there is no response
// left to finalize. The marker has no effect in the pre and handle
// phases, which never run on a dropped transaction anyway.
type RunOnDrop interface {
	RunOnDrop() bool
}
