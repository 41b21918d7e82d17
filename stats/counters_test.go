package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexasix/dhcp6d/wire"
)

func TestDumpOmitsZeroMessageTypeCounters(t *testing.T) {
	c := NewCounters(nil)
	c.IncMessageType(wire.MessageTypeSolicit)
	c.IncMessageType(wire.MessageTypeSolicit)
	c.IncDisposition(DispositionEmitted)
	c.IncTimeout()

	dump := c.Dump()
	assert.Contains(t, dump, "message_type.solicit=2")
	assert.Contains(t, dump, "disposition.emitted=1")
	assert.Contains(t, dump, "timeouts=1")
	assert.NotContains(t, dump, "message_type.request", "unused message types are omitted from the dump")
}

func TestDumpIsSortedAndStable(t *testing.T) {
	c := NewCounters(nil)
	c.IncDecodeFailure()
	c.IncQueueFull()

	lines := strings.Split(strings.TrimRight(c.Dump(), "\n"), "\n")
	sorted := append([]string(nil), lines...)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}
}

func TestIncMessageTypeIgnoresOutOfRangeValues(t *testing.T) {
	c := NewCounters(nil)
	assert.NotPanics(t, func() { c.IncMessageType(wire.MessageType(250)) })
}
