// Package worker implements a fixed-size pool of identical workers:
// each dequeues a transaction, runs it through the compiled
// handlers.Pipeline, and hands the encoded response back to whichever
// listener owns the receiving socket. The pool also tracks a sliding
// window of handler exceptions to decide whether the server itself
// has become unhealthy enough to shut down.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/stats"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// Job is one parsed transaction awaiting a worker, paired with the
// callback that writes an encoded response back to the socket it
// arrived on.
type Job struct {
	Transaction *transaction.Transaction
	Reply       func([]byte) error
}

// Config tunes pool sizing and the exception circuit breaker.
type Config struct {
	// Workers is the fixed number of pipeline-running goroutines.
	Workers int
	// QueueDepth bounds the work channel; it defaults to 4x Workers
	// to bound memory.
	QueueDepth int
	// MaxExceptions and ExceptionWindow define the circuit breaker:
	// if more than MaxExceptions handler errors land within
	// ExceptionWindow, OnCircuitBreak fires once and the pool stops
	// accepting new work.
	MaxExceptions   int
	ExceptionWindow time.Duration
	// OnCircuitBreak is invoked (at most once) when the breaker trips.
	// A nil func is a no-op; the app wires this to request the same
	// shutdown path as the control channel's "shutdown" command.
	OnCircuitBreak func()
}

// Pool drains a bounded Job channel with a fixed set of workers, each
// running jobs through pipeline one at a time; workers never share
// transaction state.
type Pool struct {
	pipeline atomic.Pointer[handlers.Pipeline]
	cfg      Config
	counters *stats.Counters
	logger   *zap.Logger

	jobs chan Job
	eg   *errgroup.Group

	// excMu guards the exception window; every worker goroutine records
	// into it, and Submit reads tripped from the listener goroutine.
	excMu      sync.Mutex
	exceptions []time.Time
	tripped    atomic.Bool
}

// NewPool constructs a pool bound to pipeline. The pool does not start
// running workers until Start is called, so app.go can build it ahead
// of the listener that will feed it.
func NewPool(pipeline *handlers.Pipeline, cfg Config, counters *stats.Counters, logger *zap.Logger) *Pool {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4 * cfg.Workers
	}
	p := &Pool{
		cfg:      cfg,
		counters: counters,
		logger:   logger,
		jobs:     make(chan Job, cfg.QueueDepth),
	}
	p.pipeline.Store(pipeline)
	return p
}

// SetPipeline atomically swaps in a newly compiled pipeline. A job
// already running reads the pipeline once at the top of Pool.run, so
// it always finishes under the pipeline it started with even if a
// reload lands mid-transaction.
func (p *Pool) SetPipeline(pipeline *handlers.Pipeline) { p.pipeline.Store(pipeline) }

// Start launches cfg.Workers goroutines under an errgroup tied to ctx;
// cancelling ctx (or calling Stop) makes every worker exit once it
// finishes its current job.
func (p *Pool) Start(ctx context.Context) {
	eg, ctx := errgroup.WithContext(ctx)
	p.eg = eg
	for i := 0; i < p.cfg.Workers; i++ {
		eg.Go(func() error {
			p.loop(ctx)
			return nil
		})
	}
}

// Submit enqueues job without blocking. It returns false (and bumps
// the queue-full counter) if the channel is full or the pool has
// tripped its exception circuit breaker; the listener drops the
// datagram rather than stalling its read loop.
func (p *Pool) Submit(job Job) bool {
	if p.tripped.Load() {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.counters.IncQueueFull()
		return false
	}
}

// Stop closes the job queue so workers drain remaining work and exit,
// then waits up to grace for them to finish. It always returns once
// grace elapses, even if workers are still draining; the caller
// decides what force means for its process (os.Exit, context
// cancellation, ...).
func (p *Pool) Stop(grace time.Duration) {
	close(p.jobs)
	done := make(chan struct{})
	go func() {
		_ = p.eg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		p.logger.Warn("worker pool did not drain within grace period", zap.Duration("grace", grace))
	}
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(job)
		}
	}
}

func (p *Pool) run(job Job) {
	t := job.Transaction
	pipeline := p.pipeline.Load()
	p.counters.IncMessageType(t.Request.MessageType)
	start := time.Now()
	defer func() { p.counters.ObserveLatency(time.Since(start).Seconds()) }()

	// Pre and handle run only while the transaction is still live.
	// The post phase always runs: once a deadline check or a phase
	// error has dropped the transaction, RunPost narrows itself to the
	// RunOnDrop-marked handlers so counters and accounting still fire.
	if !p.checkDeadline(t) {
		if p.runPhase(t, pipeline.RunPre) == nil && !p.checkDeadline(t) {
			if p.runPhase(t, pipeline.RunHandle) == nil {
				p.checkDeadline(t)
			}
		}
	}
	_ = p.runPhase(t, pipeline.RunPost)

	p.emit(job)
}

// checkDeadline drops t and returns true once its deadline has
// passed; it runs between phases so a slow handler costs at most one
// phase of overrun.
func (p *Pool) checkDeadline(t *transaction.Transaction) bool {
	if time.Now().Before(t.Deadline) {
		return false
	}
	t.SetDisposition(transaction.Drop)
	p.counters.IncTimeout()
	return true
}

// runPhase calls one of pipeline's RunPre/RunHandle/RunPost methods,
// recovering a handler panic into a logged, counted error so one bad
// handler never takes the worker goroutine down with it; the
// transaction is dropped instead.
func (p *Pool) runPhase(t *transaction.Transaction, phase func(*transaction.Transaction) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked", zap.Any("recover", r))
			t.SetDisposition(transaction.Drop)
			p.counters.IncHandlerError()
			p.recordException()
			err = errHandlerPanic
		}
	}()
	if perr := phase(t); perr != nil {
		p.logger.Error("handler returned error", zap.Error(perr))
		t.SetDisposition(transaction.Drop)
		p.counters.IncHandlerError()
		p.recordException()
		return perr
	}
	return nil
}

var errHandlerPanic = errPanic("worker: handler panicked")

type errPanic string

func (e errPanic) Error() string { return string(e) }

// recordException appends to the exception circuit breaker's sliding
// window and trips it (once) if more than MaxExceptions land inside
// ExceptionWindow.
func (p *Pool) recordException() {
	if p.cfg.MaxExceptions <= 0 {
		return
	}
	p.excMu.Lock()
	defer p.excMu.Unlock()
	now := time.Now()
	cutoff := now.Add(-p.cfg.ExceptionWindow)
	kept := p.exceptions[:0]
	for _, ts := range p.exceptions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	p.exceptions = append(kept, now)
	if !p.tripped.Load() && len(p.exceptions) > p.cfg.MaxExceptions {
		p.tripped.Store(true)
		p.logger.Error("exception rate exceeded threshold, tripping circuit breaker",
			zap.Int("count", len(p.exceptions)), zap.Duration("window", p.cfg.ExceptionWindow))
		if p.cfg.OnCircuitBreak != nil {
			p.cfg.OnCircuitBreak()
		}
	}
}

func (p *Pool) emit(job Job) {
	t := job.Transaction
	if t.Disposition() == transaction.Drop {
		p.counters.IncDisposition(stats.DispositionDropped)
		return
	}
	if t.Response == nil {
		p.counters.IncDisposition(stats.DispositionDropped)
		return
	}

	var out wire.DHCPv6 = t.Response
	if final, ok := t.Get("final_response"); ok {
		out = final.(wire.DHCPv6)
	}

	encoded, err := encode(out)
	if err != nil {
		p.logger.Error("failed to encode response", zap.Error(err))
		p.counters.IncDisposition(stats.DispositionDropped)
		return
	}

	if err := job.Reply(encoded); err != nil {
		p.logger.Error("failed to send response", zap.Error(err))
		p.counters.IncSendFailure()
		return
	}
	p.counters.IncDisposition(stats.DispositionEmitted)
}

// encode re-serializes out, validating a plain Message's invariants
// (preferred<=valid lifetimes) before committing to wire bytes; a
// wrapped RelayMessage has no lifetimes of its own to validate, so it
// encodes directly.
func encode(out wire.DHCPv6) ([]byte, error) {
	if msg, ok := out.(*wire.Message); ok {
		return msg.Encode()
	}
	return out.ToBytes(), nil
}
