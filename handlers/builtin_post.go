package handlers

import (
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// mandatoryOptions are never stripped by stripUnsolicitedHandler
// regardless of the request's option-request list, since they are
// part of every reply's required envelope (RFC 8415 section 18.3).
var mandatoryOptions = map[wire.OptionCode]bool{
	wire.OptionClientID:     true,
	wire.OptionServerID:     true,
	wire.OptionIANA:         true,
	wire.OptionIATA:         true,
	wire.OptionIAPD:         true,
	wire.OptionStatusCode:   true,
	wire.OptionPreference:   true,
	wire.OptionRapidCommit:  true,
	wire.OptionReconfAccept: true,
}

// serverIDEnforcer is a mandatory pre-handler, run before the handle
// phase so a request addressed to the wrong server never reaches
// allocation/option logic at all. It applies the RFC 8415 section 16
// per-message Server Identifier rules:
//
//   - Solicit/Confirm/Rebind MUST be discarded if they carry *any*
//     Server Identifier option (section 16.2, 16.4, 16.7).
//   - Request/Renew/Decline/Release MUST be discarded if they carry
//     *no* Server Identifier option (section 16.6, 16.8, 16.10, 16.11).
//   - Any message carrying a Server Identifier that isn't ours is
//     discarded, full stop.
type serverIDEnforcer struct {
	ServerDUID wire.DUID
	Logger     *zap.Logger
}

func (h *serverIDEnforcer) Precedence() int { return -100 }

func (h *serverIDEnforcer) Handle(t *transaction.Transaction, next func() error) error {
	sid := t.Request.Options.ServerID()
	switch t.Request.MessageType {
	case wire.MessageTypeSolicit, wire.MessageTypeConfirm, wire.MessageTypeRebind:
		if sid != nil {
			t.SetDisposition(transaction.Drop)
			return nil
		}
	case wire.MessageTypeRequest, wire.MessageTypeRenew, wire.MessageTypeDecline, wire.MessageTypeRelease:
		if sid == nil {
			t.SetDisposition(transaction.Drop)
			return nil
		}
	}
	if sid != nil && !sid.DUID.Equal(h.ServerDUID) {
		h.Logger.Debug("dropping request addressed to a different server", zap.Stringer("duid_type_theirs", sidKind(sid.DUID.Type())))
		t.SetDisposition(transaction.Drop)
		return nil
	}
	return next()
}

type sidKind wire.DUIDType

func (k sidKind) String() string {
	switch wire.DUIDType(k) {
	case wire.DUIDTypeLLT:
		return "LLT"
	case wire.DUIDTypeEN:
		return "EN"
	case wire.DUIDTypeLL:
		return "LL"
	case wire.DUIDTypeUUID:
		return "UUID"
	default:
		return "opaque"
	}
}

// responseTypeEnforcer pins the response's message type to what the
// request kind demands: Solicit is answered with Advertise, or with
// Reply when the client asked for (and the handle phase granted)
// rapid commit; every other request kind that reaches the post phase
// is answered with Reply. A Solicit committed via rapid commit also
// carries the rapid-commit option back, per RFC 8415 section 18.3.1.
type responseTypeEnforcer struct{}

func (h *responseTypeEnforcer) Precedence() int { return -75 }

func (h *responseTypeEnforcer) Handle(t *transaction.Transaction, next func() error) error {
	if err := next(); err != nil {
		return err
	}
	if t.Response == nil {
		return nil
	}
	switch t.Request.MessageType {
	case wire.MessageTypeSolicit:
		if t.Request.Options.Has(wire.OptionRapidCommit) && t.HasMark("rapid-commit") {
			t.Response.MessageType = wire.MessageTypeReply
			t.Response.Options.Set(&wire.OptRapidCommit{})
		} else {
			t.Response.MessageType = wire.MessageTypeAdvertise
			t.Response.Options.Del(wire.OptionRapidCommit)
		}
	case wire.MessageTypeLeasequery:
		// The leasequery handler builds its own reply kinds; leave it be.
	default:
		t.Response.MessageType = wire.MessageTypeReply
	}
	return nil
}

// ensureServerID guarantees every response carries our own server-id,
// overriding anything a handler might have mistakenly set, per RFC
// 8415 section 18.3 "server MUST include a Server Identifier option".
type ensureServerID struct{ ServerDUID wire.DUID }

func (h *ensureServerID) Precedence() int { return -50 }

func (h *ensureServerID) Handle(t *transaction.Transaction, next func() error) error {
	if err := next(); err != nil {
		return err
	}
	if t.Response == nil {
		return nil
	}
	t.Response.Options.Set(&wire.OptServerID{DUID: h.ServerDUID})
	if cid := t.Request.Options.ClientID(); cid != nil {
		t.Response.Options.Set(&wire.OptClientID{DUID: cid.DUID})
	}
	return nil
}

// iaStatusFiller fills in a default "no binding for you" status code
// on any IA_NA/IA_TA/IA_PD container a handle-phase handler left empty,
// so a client never receives an IA with neither addresses nor a status
// explaining why, per RFC 8415 section 18.3.2's enumerated cases.
type iaStatusFiller struct{}

func (h *iaStatusFiller) Precedence() int { return 0 }

func (h *iaStatusFiller) Handle(t *transaction.Transaction, next func() error) error {
	if err := next(); err != nil {
		return err
	}
	if t.Response == nil {
		return nil
	}
	for _, ia := range t.Response.Options.IANAs() {
		fillStatusIfEmpty(&ia.Options, wire.StatusNoAddrsAvail)
	}
	for _, opt := range t.Response.Options.GetAll(wire.OptionIATA) {
		if ta, ok := opt.(*wire.OptIATA); ok {
			fillStatusIfEmpty(&ta.Options, wire.StatusNoAddrsAvail)
		}
	}
	for _, pd := range t.Response.Options.IAPD() {
		fillStatusIfEmpty(&pd.Options, wire.StatusNoPrefixAvail)
	}
	return nil
}

func fillStatusIfEmpty(opts *wire.Options, fallback wire.StatusCode) {
	if opts.Has(wire.OptionStatusCode) {
		return
	}
	hasLease := opts.Has(wire.OptionIAAddr) || opts.Has(wire.OptionIAPrefix)
	if hasLease {
		opts.Add(&wire.OptStatusCode{StatusCode: wire.StatusSuccess})
		return
	}
	opts.Add(&wire.OptStatusCode{StatusCode: fallback})
}

// stripUnsolicitedHandler removes any response option the client
// didn't ask for via option-request, except the mandatory envelope
// options that are part of every reply regardless.
type stripUnsolicitedHandler struct{}

func (h *stripUnsolicitedHandler) Precedence() int { return 50 }

func (h *stripUnsolicitedHandler) Handle(t *transaction.Transaction, next func() error) error {
	if err := next(); err != nil {
		return err
	}
	if t.Response == nil {
		return nil
	}
	oro, _ := t.Request.Options.Get(wire.OptionOptionRequest).(*wire.OptOptionRequest)
	kept := t.Response.Options.List()[:0]
	for _, opt := range t.Response.Options.List() {
		code := opt.Code()
		if mandatoryOptions[code] {
			kept = append(kept, opt)
			continue
		}
		if oro != nil && oro.IsRequested(code) {
			kept = append(kept, opt)
		}
	}
	t.Response.Options = wire.Options{}
	for _, opt := range kept {
		t.Response.Options.Add(opt)
	}
	return nil
}

// relayReframer wraps a finished response back through the relay
// chain the request arrived through, innermost first, so the reply
// retraces the exact relay path of the request (RFC 8415 section
// 19.3).
type relayReframer struct{}

func (h *relayReframer) Precedence() int { return 100 }

func (h *relayReframer) Handle(t *transaction.Transaction, next func() error) error {
	if err := next(); err != nil {
		return err
	}
	if t.Response == nil || len(t.RelayChain) == 0 {
		return nil
	}
	var wrapped wire.DHCPv6 = t.Response
	for i := len(t.RelayChain) - 1; i >= 0; i-- {
		wrapped = wire.NewRelayReplFromRelayForw(t.RelayChain[i], wrapped)
	}
	t.Set("final_response", wrapped)
	return nil
}

// BuiltinPreHandlers returns the mandatory pre-phase handlers every
// pipeline runs regardless of configuration.
func BuiltinPreHandlers(serverDUID wire.DUID, logger *zap.Logger) []Handler {
	return []Handler{&serverIDEnforcer{ServerDUID: serverDUID, Logger: logger}}
}

// BuiltinPostHandlers returns the mandatory post-phase handlers every
// pipeline runs regardless of configuration, in the order their
// Precedence values impose.
func BuiltinPostHandlers(serverDUID wire.DUID) []Handler {
	return []Handler{
		&responseTypeEnforcer{},
		&ensureServerID{ServerDUID: serverDUID},
		&iaStatusFiller{},
		&stripUnsolicitedHandler{},
		&relayReframer{},
	}
}
