// Package dhcp6d is the caddy.App gluing the wire codec, filter tree,
// handler pipeline, listener, worker pool, and statistics/control
// channel into one running DHCPv6 server. The configured filter tree
// is compiled once, at Provision time, into a flat three-phase
// handler pipeline; nothing re-walks configuration per packet.
package dhcp6d

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"

	"github.com/hexasix/dhcp6d/filter"
	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/handlers/dns"
	"github.com/hexasix/dhcp6d/handlers/dslite"
	"github.com/hexasix/dhcp6d/handlers/leasequery"
	"github.com/hexasix/dhcp6d/handlers/messagelog"
	"github.com/hexasix/dhcp6d/handlers/ntp"
	"github.com/hexasix/dhcp6d/handlers/pool"
	"github.com/hexasix/dhcp6d/handlers/prefix"
	"github.com/hexasix/dhcp6d/handlers/serverid"
	"github.com/hexasix/dhcp6d/handlers/sip"
	"github.com/hexasix/dhcp6d/handlers/solmaxrt"
	"github.com/hexasix/dhcp6d/listener"
	"github.com/hexasix/dhcp6d/stats"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
	"github.com/hexasix/dhcp6d/worker"
)

func init() {
	caddy.RegisterModule(App{})

	caddy.RegisterModule(dns.Module{})
	caddy.RegisterModule(dslite.Module{})
	caddy.RegisterModule(leasequery.Module{})
	caddy.RegisterModule(messagelog.Module{})
	caddy.RegisterModule(ntp.Module{})
	caddy.RegisterModule(pool.Module{})
	caddy.RegisterModule(prefix.Module{})
	caddy.RegisterModule(serverid.Module{})
	caddy.RegisterModule(sip.Module{})
	caddy.RegisterModule(solmaxrt.Module{})
}

// App is the "dhcp6d" caddy.App. The configuration is one flat set of
// top-level sections (listener, worker pool, statistics, control
// socket, filters) rather than a map of named servers; one process
// serves one DHCPv6 identity.
type App struct {
	// Listener configures the sockets this server binds.
	Listener ListenerConfig `json:"listener,omitempty"`

	// WorkerPool configures the fixed worker pool.
	WorkerPool WorkerPoolConfig `json:"worker_pool,omitempty"`

	// Statistics configures the latency-histogram bucket boundaries;
	// counters themselves are always on. Pushing counters to an
	// external sink is out of scope here — this app only owns the
	// in-process Counters the control channel and any external sink
	// would both read from.
	Statistics StatisticsConfig `json:"statistics,omitempty"`

	// ControlSocket configures the UNIX control channel.
	ControlSocket ControlSocketConfig `json:"control_socket,omitempty"`

	// Filters is the ordered list of top-level filter/handler tree
	// nodes. The tree is evaluated top-down per transaction; handler
	// order comes from a depth-first traversal with siblings in
	// declared order, and a node's own handlers precede its children's.
	Filters []*FilterNode `json:"filters,omitempty"`

	// ServerDUID configures this server's identity, in the same
	// "<type> <value>" syntax wire.ParseDUID accepts (for example
	// "ll 00:11:22:33:44:55" or "uuid <uuid>"). If empty, a DUID-LL is
	// derived from the first bound interface's link-layer address.
	ServerDUID string `json:"server_duid,omitempty"`

	ctx      caddy.Context
	logger   *zap.Logger
	duid     wire.DUID
	counters *stats.Counters
	pipeline *handlers.Pipeline
	pool     *worker.Pool
	ln       *listener.Listener
	bulk     *listener.BulkListener
	control  *stats.ControlServer
	cancel   context.CancelFunc
}

// ListenerConfig selects the sockets the server binds.
type ListenerConfig struct {
	// Interfaces binds one socket per named interface; empty means
	// bind the wildcard address on every interface.
	Interfaces []string `json:"interfaces,omitempty"`
	// Address overrides the default "[::]:547" bind address.
	Address string `json:"address,omitempty"`
	// Multicast joins ff02::1:2 (All-DHCP-Relay-Agents-and-Servers) on
	// every listed interface.
	Multicast bool `json:"multicast_join,omitempty"`
	// BulkAddress, when set, additionally binds a TCP socket for bulk
	// leasequery connections (RFC 5460), e.g. "[::]:547".
	BulkAddress string `json:"bulk_address,omitempty"`
}

// WorkerPoolConfig sizes the worker pool and its queue, and tunes the
// per-transaction deadline and the exception circuit breaker.
type WorkerPoolConfig struct {
	Workers           int `json:"workers,omitempty"`
	QueueDepth        int `json:"queue_depth,omitempty"`
	DeadlineMS        int `json:"deadline_ms,omitempty"`
	MaxExceptions     int `json:"max_exceptions,omitempty"`
	ExceptionWindowMS int `json:"exception_window_ms,omitempty"`
}

// StatisticsConfig tunes the latency histogram.
type StatisticsConfig struct {
	LatencyBucketsMS []float64 `json:"latency_buckets_ms,omitempty"`
}

// ControlSocketConfig places the UNIX control socket.
type ControlSocketConfig struct {
	Path string `json:"path,omitempty"`
}

// FilterNode is one node of the declarative filter/handler tree: a
// predicate (Match) scoping a set of handlers and nested child nodes.
// It is a plain config struct rather than its own caddy.Module, since
// the menu of predicate kinds is a small closed set (always, marked,
// interface, subnet, duid, remote-id, subscriber-id, message-type);
// only the handlers attached to a node are independently pluggable
// caddy.Modules.
type FilterNode struct {
	Match    MatchConfig     `json:"match,omitempty"`
	Handlers []HandlerConfig `json:"handlers,omitempty"`
	Children []*FilterNode   `json:"filters,omitempty"`
}

// MatchConfig names one predicate kind and its parameters. An empty
// Kind (or "always") matches every transaction.
type MatchConfig struct {
	Kind              string   `json:"kind,omitempty"`
	Mark              string   `json:"mark,omitempty"`
	Subnets           []string `json:"subnets,omitempty"`
	Interfaces        []string `json:"interfaces,omitempty"`
	DUIDs             []string `json:"duids,omitempty"`
	EnterpriseNumbers []uint32 `json:"enterprise_numbers,omitempty"`
	SubscriberIDs     []string `json:"subscriber_ids,omitempty"`
	MessageTypes      []string `json:"message_types,omitempty"`
	Negate            bool     `json:"negate,omitempty"`
}

// HandlerConfig pairs a pluggable handler module with the pipeline
// phase (pre, handle, or post) it runs in.
type HandlerConfig struct {
	Phase      string          `json:"phase"`
	HandlerRaw json.RawMessage `json:"handler,omitempty" caddy:"namespace=dhcp.handlers inline_key=handler"`
}

// CaddyModule returns the Caddy module information.
func (App) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp6d",
		New: func() caddy.Module { return new(App) },
	}
}

// Provision resolves the server DUID, loads and compiles the filter
// tree into a handlers.Pipeline, and builds (without yet starting) the
// worker pool, statistics counters, and control server.
func (app *App) Provision(ctx caddy.Context) error {
	app.ctx = ctx
	app.logger = ctx.Logger()

	duid, err := app.resolveServerDUID()
	if err != nil {
		return fmt.Errorf("dhcp6d: resolving server DUID: %w", err)
	}
	app.duid = duid

	var secBuckets []float64
	if len(app.Statistics.LatencyBucketsMS) > 0 {
		secBuckets = make([]float64, len(app.Statistics.LatencyBucketsMS))
		for i, ms := range app.Statistics.LatencyBucketsMS {
			secBuckets[i] = ms / 1000
		}
	}
	app.counters = stats.NewCounters(secBuckets)

	pipeline, err := app.compilePipeline(ctx)
	if err != nil {
		return fmt.Errorf("dhcp6d: compiling handler pipeline: %w", err)
	}
	app.pipeline = pipeline

	workers := app.WorkerPool.Workers
	if workers <= 0 {
		workers = 4
	}
	exceptionWindowMS := app.WorkerPool.ExceptionWindowMS
	if exceptionWindowMS <= 0 {
		exceptionWindowMS = 60_000
	}
	app.pool = worker.NewPool(app.pipeline, worker.Config{
		Workers:         workers,
		QueueDepth:      app.WorkerPool.QueueDepth,
		MaxExceptions:   app.WorkerPool.MaxExceptions,
		ExceptionWindow: time.Duration(exceptionWindowMS) * time.Millisecond,
		OnCircuitBreak:  func() { _ = app.Stop() },
	}, app.counters, app.logger.Named("worker"))

	if app.ControlSocket.Path != "" {
		app.control = &stats.ControlServer{
			Counters: app.counters,
			Reload:   app.reload,
			Shutdown: func() { go func() { _ = app.Stop() }() },
			Logger:   app.logger.Named("control"),
		}
	}

	return nil
}

// resolveServerDUID parses App.ServerDUID if set; otherwise it
// derives a DUID-LL from the first bound interface's link-layer
// address, so an unconfigured server still presents a stable identity
// across restarts on the same hardware.
func (app *App) resolveServerDUID() (wire.DUID, error) {
	if app.ServerDUID != "" {
		return wire.ParseDUID(app.ServerDUID)
	}
	ifaceNames := app.Listener.Interfaces
	if len(ifaceNames) == 0 {
		ifaces, err := net.Interfaces()
		if err != nil {
			return nil, err
		}
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) > 0 {
				return &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: iface.HardwareAddr}, nil
			}
		}
		return nil, fmt.Errorf("no interface with a hardware address found to derive a server DUID")
	}
	iface, err := net.InterfaceByName(ifaceNames[0])
	if err != nil {
		return nil, err
	}
	return &wire.DUIDLL{HWType: wire.HardwareTypeEthernet, LinkLayer: iface.HardwareAddr}, nil
}

// compilePipeline linearizes the filter tree into handlers.Entry
// values via a depth-first walk — siblings in declared order, a node's
// own handlers before its children's — prepending/appending the
// mandatory built-in pre/post handlers.
func (app *App) compilePipeline(ctx caddy.Context) (*handlers.Pipeline, error) {
	var entries []handlers.Entry
	for _, h := range handlers.BuiltinPreHandlers(app.duid, app.logger.Named("builtin")) {
		entries = append(entries, handlers.Entry{Filter: filter.AlwaysMatch{}, Handler: h, Phase: handlers.PhasePre})
	}

	for _, node := range app.Filters {
		walked, err := app.walkFilterNode(ctx, node, filter.AlwaysMatch{})
		if err != nil {
			return nil, err
		}
		entries = append(entries, walked...)
	}

	for _, h := range handlers.BuiltinPostHandlers(app.duid) {
		entries = append(entries, handlers.Entry{Filter: filter.AlwaysMatch{}, Handler: h, Phase: handlers.PhasePost})
	}

	return handlers.NewPipeline(entries), nil
}

func (app *App) walkFilterNode(ctx caddy.Context, node *FilterNode, parent filter.Filter) ([]handlers.Entry, error) {
	f, err := compileMatch(node.Match)
	if err != nil {
		return nil, err
	}
	scope := filter.All{parent, f}

	var entries []handlers.Entry
	for i := range node.Handlers {
		hc := &node.Handlers[i]
		phase, err := parsePhase(hc.Phase)
		if err != nil {
			return nil, err
		}
		loaded, err := ctx.LoadModule(hc, "HandlerRaw")
		if err != nil {
			return nil, fmt.Errorf("loading handler module: %w", err)
		}
		h, ok := loaded.(handlers.Handler)
		if !ok {
			return nil, fmt.Errorf("module %T does not implement handlers.Handler", loaded)
		}
		entries = append(entries, handlers.Entry{Filter: scope, Handler: h, Phase: phase})
	}

	for _, child := range node.Children {
		childEntries, err := app.walkFilterNode(ctx, child, scope)
		if err != nil {
			return nil, err
		}
		entries = append(entries, childEntries...)
	}
	return entries, nil
}

func parsePhase(s string) (handlers.Phase, error) {
	switch s {
	case "pre":
		return handlers.PhasePre, nil
	case "handle", "":
		return handlers.PhaseHandle, nil
	case "post":
		return handlers.PhasePost, nil
	default:
		return 0, fmt.Errorf("unknown handler phase %q", s)
	}
}

func compileMatch(m MatchConfig) (filter.Filter, error) {
	var f filter.Filter
	switch m.Kind {
	case "", "always":
		f = filter.AlwaysMatch{}
	case "marked":
		f = filter.MarkedWith{Name: m.Mark}
	case "interface":
		f = filter.InterfaceMatch{Interfaces: m.Interfaces}
	case "subnet":
		subnets := make([]*net.IPNet, 0, len(m.Subnets))
		for _, s := range m.Subnets {
			_, n, err := net.ParseCIDR(s)
			if err != nil {
				return nil, fmt.Errorf("invalid subnet %q: %w", s, err)
			}
			subnets = append(subnets, n)
		}
		f = filter.SubnetMatch{Subnets: subnets}
	case "duid":
		duids := make([]wire.DUID, 0, len(m.DUIDs))
		for _, s := range m.DUIDs {
			d, err := wire.ParseDUID(s)
			if err != nil {
				return nil, fmt.Errorf("invalid duid %q: %w", s, err)
			}
			duids = append(duids, d)
		}
		f = filter.DuidMatch{DUIDs: duids}
	case "remote-id":
		f = filter.RemoteIdMatch{EnterpriseNumbers: m.EnterpriseNumbers}
	case "subscriber-id":
		ids := make([][]byte, 0, len(m.SubscriberIDs))
		for _, s := range m.SubscriberIDs {
			ids = append(ids, []byte(s))
		}
		f = filter.SubscriberIdMatch{SubscriberIDs: ids}
	case "message-type":
		types, err := parseMessageTypes(m.MessageTypes)
		if err != nil {
			return nil, err
		}
		f = filter.MessageTypeMatch{Types: types}
	default:
		return nil, fmt.Errorf("unknown filter kind %q", m.Kind)
	}
	if m.Negate {
		f = filter.Not{Inner: f}
	}
	return f, nil
}

var messageTypeByName = map[string]wire.MessageType{
	"solicit": wire.MessageTypeSolicit, "request": wire.MessageTypeRequest,
	"confirm": wire.MessageTypeConfirm, "renew": wire.MessageTypeRenew,
	"rebind": wire.MessageTypeRebind, "release": wire.MessageTypeRelease,
	"decline": wire.MessageTypeDecline, "information-request": wire.MessageTypeInformationRequest,
}

func parseMessageTypes(names []string) ([]wire.MessageType, error) {
	out := make([]wire.MessageType, 0, len(names))
	for _, name := range names {
		mt, ok := messageTypeByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown message type %q", name)
		}
		out = append(out, mt)
	}
	return out, nil
}

// Start opens the configured sockets and starts the worker pool and
// control server.
func (app *App) Start() error {
	var configs []listener.Config
	ifaces := app.Listener.Interfaces
	if len(ifaces) == 0 {
		ifaces = []string{""}
	}
	for _, iface := range ifaces {
		configs = append(configs, listener.Config{
			Interface: iface,
			Address:   app.Listener.Address,
			Multicast: app.Listener.Multicast && iface != "",
		})
	}

	deadline := time.Duration(app.WorkerPool.DeadlineMS) * time.Millisecond
	ln, err := listener.Open(app.logger.Named("listener"), app.counters, deadline, configs)
	if err != nil {
		return err
	}
	app.ln = ln

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.pool.Start(ctx)

	submit := func(t *transaction.Transaction, reply func([]byte) error) {
		if !app.pool.Submit(worker.Job{Transaction: t, Reply: reply}) {
			app.logger.Warn("dropping transaction, worker queue full")
		}
	}

	go func() {
		if err := app.ln.Serve(submit); err != nil {
			app.logger.Error("listener serve loop exited", zap.Error(err))
		}
	}()

	if app.Listener.BulkAddress != "" {
		bulk, err := listener.OpenBulk(app.logger.Named("bulk"), app.counters, deadline, app.Listener.BulkAddress)
		if err != nil {
			return err
		}
		app.bulk = bulk
		go func() {
			if err := app.bulk.Serve(submit); err != nil {
				app.logger.Debug("bulk leasequery listener stopped", zap.Error(err))
			}
		}()
	}

	if app.control != nil {
		if err := app.control.Listen(app.ControlSocket.Path); err != nil {
			return err
		}
		go func() {
			if err := app.control.Serve(); err != nil {
				app.logger.Debug("control server stopped", zap.Error(err))
			}
		}()
	}

	app.logger.Info("dhcp6d started", zap.Strings("interfaces", ifaces), zap.Int("workers", app.WorkerPool.Workers))
	return nil
}

// Stop closes every listener socket first (stop accepting), then
// drains the worker pool up to a 5-second grace period before
// cancelling whatever is left.
func (app *App) Stop() error {
	if app.ln != nil {
		app.ln.Close()
	}
	if app.bulk != nil {
		_ = app.bulk.Close()
	}
	if app.control != nil {
		_ = app.control.Close()
	}
	if app.pool != nil {
		app.pool.Stop(5 * time.Second)
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.logger.Info("dhcp6d stopped")
	return nil
}

// reload rebuilds the handler pipeline from the app's current config
// and swaps it in atomically. The swap is a single pointer write the
// worker pool reads once at the top of each job, so an in-flight
// transaction always finishes with the pipeline it started with while
// new transactions pick up the new one.
func (app *App) reload() error {
	pipeline, err := app.compilePipeline(app.ctx)
	if err != nil {
		return err
	}
	app.pipeline = pipeline
	app.pool.SetPipeline(pipeline)
	return nil
}

// Interfaces guards
var (
	_ caddy.App         = (*App)(nil)
	_ caddy.Provisioner = (*App)(nil)
)
