package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/filter"
	"github.com/hexasix/dhcp6d/handlers"
	"github.com/hexasix/dhcp6d/stats"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

type fakeHandler struct {
	fn func(t *transaction.Transaction, next func() error) error
}

func (h *fakeHandler) Handle(t *transaction.Transaction, next func() error) error { return h.fn(t, next) }

func newJob(deadline time.Time) (Job, *transaction.Transaction) {
	req := &wire.Message{MessageType: wire.MessageTypeSolicit}
	t := transaction.New(context.Background(), req, nil, nil, "eth0", deadline)
	return Job{Transaction: t, Reply: func([]byte) error { return nil }}, t
}

func TestPoolDropsTransactionPastDeadline(t *testing.T) {
	pipeline := handlers.NewPipeline(nil)
	counters := stats.NewCounters(nil)
	p := NewPool(pipeline, Config{Workers: 1}, counters, zap.NewNop())

	job, tx := newJob(time.Now().Add(-time.Second))
	p.run(job)

	assert.Equal(t, transaction.Drop, tx.Disposition())
}

func TestPoolRunsReplyOnSuccess(t *testing.T) {
	entries := []handlers.Entry{
		{Filter: filter.AlwaysMatch{}, Phase: handlers.PhaseHandle, Handler: &fakeHandler{fn: func(t *transaction.Transaction, next func() error) error {
			t.Response = wire.NewReplyFromMessage(t.Request)
			return next()
		}}},
	}
	pipeline := handlers.NewPipeline(entries)
	counters := stats.NewCounters(nil)
	p := NewPool(pipeline, Config{Workers: 1}, counters, zap.NewNop())

	var replied []byte
	job, _ := newJob(time.Now().Add(time.Second))
	job.Transaction.Request.MessageType = wire.MessageTypeRequest
	job.Reply = func(b []byte) error { replied = b; return nil }

	p.run(job)
	assert.NotEmpty(t, replied)
}

func TestPoolRecoversHandlerPanic(t *testing.T) {
	entries := []handlers.Entry{
		{Filter: filter.AlwaysMatch{}, Phase: handlers.PhaseHandle, Handler: &fakeHandler{fn: func(t *transaction.Transaction, next func() error) error {
			panic("boom")
		}}},
	}
	pipeline := handlers.NewPipeline(entries)
	counters := stats.NewCounters(nil)
	p := NewPool(pipeline, Config{Workers: 1}, counters, zap.NewNop())

	job, tx := newJob(time.Now().Add(time.Second))
	assert.NotPanics(t, func() { p.run(job) })
	assert.Equal(t, transaction.Drop, tx.Disposition())
}

func TestCircuitBreakerTripsAfterMaxExceptions(t *testing.T) {
	entries := []handlers.Entry{
		{Filter: filter.AlwaysMatch{}, Phase: handlers.PhaseHandle, Handler: &fakeHandler{fn: func(t *transaction.Transaction, next func() error) error {
			return assertErr
		}}},
	}
	pipeline := handlers.NewPipeline(entries)
	counters := stats.NewCounters(nil)

	tripped := false
	p := NewPool(pipeline, Config{
		Workers:         1,
		MaxExceptions:   2,
		ExceptionWindow: time.Minute,
		OnCircuitBreak:  func() { tripped = true },
	}, counters, zap.NewNop())

	for i := 0; i < 3; i++ {
		job, _ := newJob(time.Now().Add(time.Second))
		p.run(job)
	}

	require.True(t, tripped)
	job, _ := newJob(time.Now().Add(time.Second))
	assert.False(t, p.Submit(job), "a tripped circuit breaker refuses new work")
}

func TestSetPipelineSwapsAtomically(t *testing.T) {
	first := handlers.NewPipeline(nil)
	second := handlers.NewPipeline(nil)
	counters := stats.NewCounters(nil)
	p := NewPool(first, Config{Workers: 1}, counters, zap.NewNop())

	require.Same(t, first, p.pipeline.Load())
	p.SetPipeline(second)
	assert.Same(t, second, p.pipeline.Load())
}

type testError string

func (e testError) Error() string { return string(e) }

var assertErr = testError("handler failed")
