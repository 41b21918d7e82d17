package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/filter"
	"github.com/hexasix/dhcp6d/transaction"
	"github.com/hexasix/dhcp6d/wire"
)

// recordingHandler appends its name to a shared order slice, then
// calls next; a non-empty drop sets the transaction's disposition to
// Drop instead of continuing.
type recordingHandler struct {
	name  string
	order *[]string
	drop  bool
}

func (h *recordingHandler) Handle(t *transaction.Transaction, next func() error) error {
	*h.order = append(*h.order, h.name)
	if h.drop {
		t.SetDisposition(transaction.Drop)
		return nil
	}
	return next()
}

func newTx() *transaction.Transaction {
	req := &wire.Message{MessageType: wire.MessageTypeSolicit}
	return transaction.New(context.Background(), req, nil, nil, "eth0", time.Now().Add(time.Second))
}

func TestPipelineRunsHandlersInOrderWithinAPhase(t *testing.T) {
	var order []string
	entries := []Entry{
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "a", order: &order}, Phase: PhaseHandle},
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "b", order: &order}, Phase: PhaseHandle},
	}
	p := NewPipeline(entries)
	tx := newTx()
	require.NoError(t, p.Run(tx))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestPipelineSkipsUnmatchedFilter(t *testing.T) {
	var order []string
	entries := []Entry{
		{Filter: filter.Not{Inner: filter.AlwaysMatch{}}, Handler: &recordingHandler{name: "skipped", order: &order}, Phase: PhaseHandle},
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "ran", order: &order}, Phase: PhaseHandle},
	}
	p := NewPipeline(entries)
	require.NoError(t, p.Run(newTx()))
	assert.Equal(t, []string{"ran"}, order)
}

// droppableHandler is a recordingHandler that also runs for dropped
// transactions, the way an accounting handler would.
type droppableHandler struct{ recordingHandler }

func (h *droppableHandler) RunOnDrop() bool { return true }

func TestDropInPreSkipsHandleAndUnmarkedPostHandlers(t *testing.T) {
	var order []string
	entries := []Entry{
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "pre", order: &order, drop: true}, Phase: PhasePre},
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "handle", order: &order}, Phase: PhaseHandle},
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "post", order: &order}, Phase: PhasePost},
		{Filter: filter.AlwaysMatch{}, Handler: &droppableHandler{recordingHandler{name: "post-on-drop", order: &order}}, Phase: PhasePost},
	}
	p := NewPipeline(entries)
	tx := newTx()
	require.NoError(t, p.Run(tx))

	assert.Equal(t, transaction.Drop, tx.Disposition())
	assert.Equal(t, []string{"pre", "post-on-drop"}, order,
		"a dropped transaction skips the handle phase and every post handler not marked to run on drop")
}

func TestPostPhaseRunsInFullWithoutADrop(t *testing.T) {
	var order []string
	entries := []Entry{
		{Filter: filter.AlwaysMatch{}, Handler: &recordingHandler{name: "post", order: &order}, Phase: PhasePost},
		{Filter: filter.AlwaysMatch{}, Handler: &droppableHandler{recordingHandler{name: "post-on-drop", order: &order}}, Phase: PhasePost},
	}
	p := NewPipeline(entries)
	require.NoError(t, p.Run(newTx()))
	assert.Equal(t, []string{"post", "post-on-drop"}, order)
}

type precedenceHandler struct {
	recordingHandler
	precedence int
}

func (h *precedenceHandler) Precedence() int { return h.precedence }

func TestPipelineOrdersByPrecedenceThenConfigOrder(t *testing.T) {
	var order []string
	entries := []Entry{
		{Filter: filter.AlwaysMatch{}, Handler: &precedenceHandler{recordingHandler{name: "configured", order: &order}, 0}, Phase: PhasePost},
		{Filter: filter.AlwaysMatch{}, Handler: &precedenceHandler{recordingHandler{name: "builtin-early", order: &order}, -50}, Phase: PhasePost},
		{Filter: filter.AlwaysMatch{}, Handler: &precedenceHandler{recordingHandler{name: "builtin-late", order: &order}, 50}, Phase: PhasePost},
	}
	p := NewPipeline(entries)
	require.NoError(t, p.Run(newTx()))
	assert.Equal(t, []string{"builtin-early", "configured", "builtin-late"}, order)
}
