// Package stats holds the process-wide monotonic counters (per
// message type, per disposition, and per failure class), the pipeline
// latency histogram, and the UNIX control socket that exposes them.
// Counters are plain lock-free atomics; the latency histogram is a
// prometheus histogram so it can also be registered with a scrape
// endpoint.
package stats

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hexasix/dhcp6d/wire"
)

// Counters is the process-wide statistics block. A single instance is
// shared (by pointer) across every listener and worker; all mutating
// methods are safe for concurrent use without external locking.
type Counters struct {
	byMessageType     [18]atomic.Uint64 // indexed by wire.MessageType
	byDisposition     [3]atomic.Uint64  // emitted, dropped, deferred
	decodeFailures    atomic.Uint64
	droppedClientOnly atomic.Uint64
	handlerErrors     atomic.Uint64
	storeErrors       atomic.Uint64
	sendFailures      atomic.Uint64
	timeouts          atomic.Uint64
	queueFull         atomic.Uint64

	latency prometheus.Histogram
}

// Disposition names the three terminal outcomes a transaction's
// counters distinguish, matching transaction.Disposition's values
// without importing that package (stats must not depend on
// transaction, to stay usable from the listener before a Transaction
// exists).
type Disposition int

const (
	DispositionEmitted Disposition = iota
	DispositionDropped
	DispositionDeferred
)

// NewCounters builds a fresh counters block. latencyBuckets defaults
// to prometheus.DefBuckets (a log-ish 5ms..10s spread) when nil, which
// comfortably straddles the 1-second default transaction deadline.
func NewCounters(latencyBuckets []float64) *Counters {
	if latencyBuckets == nil {
		latencyBuckets = prometheus.DefBuckets
	}
	return &Counters{
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dhcp6d",
			Name:      "pipeline_latency_seconds",
			Help:      "Wall-clock duration of a single transaction's pipeline run.",
			Buckets:   latencyBuckets,
		}),
	}
}

// IncMessageType bumps the per-message-type counter for an inbound
// request that reached a Transaction.
func (c *Counters) IncMessageType(t wire.MessageType) {
	if int(t) < len(c.byMessageType) {
		c.byMessageType[t].Add(1)
	}
}

// IncDisposition bumps the per-disposition counter for a transaction
// that reached a terminal state.
func (c *Counters) IncDisposition(d Disposition) {
	if int(d) < len(c.byDisposition) {
		c.byDisposition[d].Add(1)
	}
}

func (c *Counters) IncDecodeFailure()     { c.decodeFailures.Add(1) }
func (c *Counters) IncDroppedClientOnly() { c.droppedClientOnly.Add(1) }
func (c *Counters) IncHandlerError()      { c.handlerErrors.Add(1) }
func (c *Counters) IncStoreError()        { c.storeErrors.Add(1) }
func (c *Counters) IncSendFailure()       { c.sendFailures.Add(1) }
func (c *Counters) IncTimeout()           { c.timeouts.Add(1) }
func (c *Counters) IncQueueFull()         { c.queueFull.Add(1) }

// ObserveLatency records one transaction's pipeline wall-clock
// duration, in seconds.
func (c *Counters) ObserveLatency(seconds float64) { c.latency.Observe(seconds) }

// Dump renders every counter as a sorted key=value line, the format
// the control channel's "stats" command returns.
func (c *Counters) Dump() string {
	kv := map[string]uint64{
		"decode_failures":      c.decodeFailures.Load(),
		"dropped_client_only":  c.droppedClientOnly.Load(),
		"handler_errors":       c.handlerErrors.Load(),
		"store_errors":         c.storeErrors.Load(),
		"send_failures":        c.sendFailures.Load(),
		"timeouts":             c.timeouts.Load(),
		"queue_full":           c.queueFull.Load(),
		"disposition.emitted":  c.byDisposition[DispositionEmitted].Load(),
		"disposition.dropped":  c.byDisposition[DispositionDropped].Load(),
		"disposition.deferred": c.byDisposition[DispositionDeferred].Load(),
	}
	for mt := 0; mt < len(c.byMessageType); mt++ {
		if v := c.byMessageType[mt].Load(); v > 0 {
			kv[fmt.Sprintf("message_type.%s", wire.MessageType(mt))] = v
		}
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s=%d\n", k, kv[k])
	}
	return out
}

// Describe and Collect satisfy prometheus.Collector for the latency
// histogram, so an operator can also register Counters with a
// prometheus.Registry and scrape it over HTTP instead of (or
// alongside) the control socket's text dump.
func (c *Counters) Describe(ch chan<- *prometheus.Desc) { c.latency.Describe(ch) }
func (c *Counters) Collect(ch chan<- prometheus.Metric) { c.latency.Collect(ch) }

var _ prometheus.Collector = (*Counters)(nil)
