package handlers

import (
	"sort"

	"github.com/hexasix/dhcp6d/filter"
	"github.com/hexasix/dhcp6d/transaction"
)

// step is one compiled entry: a handler gated by a filter, assigned to
// a phase, ordered by precedence within that phase. The configured
// filter tree is flattened into a []step at load time so the hot path
// is a linear scan, never a per-packet tree walk.
type step struct {
	phase      Phase
	precedence int
	filter     filter.Filter
	handler    Handler
}

// Pipeline is the compiled, ordered handler chain for a full
// transaction lifecycle, split into the three phases.
type Pipeline struct {
	pre    []step
	handle []step
	post   []step
	// postOnDrop is the subset of post whose handlers implement
	// RunOnDrop; it is what RunPost executes once a transaction has
	// been dropped. Precomputed here so the hot path never re-checks
	// the interface per packet.
	postOnDrop []step
}

// NewPipeline linearizes a set of (filter, handler, phase) entries
// into phase-ordered, precedence-sorted chains. Entries within a phase
// that have equal precedence keep their input (configuration) order,
// which makes last-write-wins on singleton options well-defined: ties
// are broken by configuration order, not sorted away.
func NewPipeline(entries []Entry) *Pipeline {
	p := &Pipeline{}
	for _, e := range entries {
		s := step{phase: e.Phase, precedence: precedenceOf(e.Handler), filter: e.Filter}
		s.handler = e.Handler
		switch e.Phase {
		case PhasePre:
			p.pre = append(p.pre, s)
		case PhaseHandle:
			p.handle = append(p.handle, s)
		case PhasePost:
			p.post = append(p.post, s)
		}
	}
	stableSortByPrecedence(p.pre)
	stableSortByPrecedence(p.handle)
	stableSortByPrecedence(p.post)
	for _, s := range p.post {
		if rod, ok := s.handler.(RunOnDrop); ok && rod.RunOnDrop() {
			p.postOnDrop = append(p.postOnDrop, s)
		}
	}
	return p
}

// Entry is one unlinearized (filter, handler, phase) triple as
// provided by app.go's filter-tree walk.
type Entry struct {
	Filter  filter.Filter
	Handler Handler
	Phase   Phase
}

func precedenceOf(h Handler) int {
	if p, ok := h.(Precedence); ok {
		return p.Precedence()
	}
	return 0
}

func stableSortByPrecedence(steps []step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].precedence < steps[j].precedence })
}

// Run drives a transaction through all three phases in order. Once a
// transaction is dropped, the handle phase is skipped entirely and
// the post phase narrows to the handlers marked RunOnDrop.
func (p *Pipeline) Run(t *transaction.Transaction) error {
	if err := p.RunPre(t); err != nil {
		return err
	}
	if err := p.RunHandle(t); err != nil {
		return err
	}
	return p.RunPost(t)
}

// RunPre, RunHandle, and RunPost run one phase each, split out so
// worker.Pool can check a transaction's deadline between phases.
// RunHandle is a no-op once the transaction has been dropped; RunPost
// then runs only the RunOnDrop-marked handlers, so accounting still
// happens but response finalization and other side effects do not.
func (p *Pipeline) RunPre(t *transaction.Transaction) error { return runPhase(p.pre, t) }

func (p *Pipeline) RunHandle(t *transaction.Transaction) error {
	if t.Disposition() == transaction.Drop {
		return nil
	}
	return runPhase(p.handle, t)
}

func (p *Pipeline) RunPost(t *transaction.Transaction) error {
	if t.Disposition() == transaction.Drop {
		return runPhase(p.postOnDrop, t)
	}
	return runPhase(p.post, t)
}

// runPhase chains the steps whose filter matches t by building the
// next-func chain in reverse, middleware-style, skipping steps whose
// filter doesn't match rather than calling every handler
// unconditionally.
func runPhase(steps []step, t *transaction.Transaction) error {
	next := func() error { return nil }
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if !s.filter.Match(t) {
			continue
		}
		nextCopy := next
		h := s.handler
		next = func() error { return h.Handle(t, nextCopy) }
	}
	return next()
}
