package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexasix/dhcp6d/wire"
)

func newTestTransaction(mt wire.MessageType) *Transaction {
	req := &wire.Message{MessageType: mt, TransactionID: [3]byte{1, 2, 3}}
	return New(context.Background(), req, nil, nil, "eth0", time.Now().Add(time.Second))
}

func TestSetDispositionIsMonotonic(t *testing.T) {
	tx := newTestTransaction(wire.MessageTypeSolicit)
	require.Equal(t, Continue, tx.Disposition())

	tx.SetDisposition(Drop)
	assert.Equal(t, Drop, tx.Disposition())

	tx.SetDisposition(Respond)
	assert.Equal(t, Drop, tx.Disposition(), "a dropped transaction must never be revived")
}

func TestMarksAndScratch(t *testing.T) {
	tx := newTestTransaction(wire.MessageTypeRequest)
	assert.False(t, tx.HasMark("trusted-relay"))

	tx.Mark("trusted-relay")
	assert.True(t, tx.HasMark("trusted-relay"))

	_, ok := tx.Get("matched-subnet")
	assert.False(t, ok)

	tx.Set("matched-subnet", "2001:db8::/64")
	v, ok := tx.Get("matched-subnet")
	require.True(t, ok)
	assert.Equal(t, "2001:db8::/64", v)
}

func TestEnsureResponseSolicitBuildsAdvertise(t *testing.T) {
	tx := newTestTransaction(wire.MessageTypeSolicit)
	resp := tx.EnsureResponse()
	require.NotNil(t, resp)
	assert.Equal(t, wire.MessageTypeAdvertise, resp.MessageType)
	assert.Same(t, resp, tx.EnsureResponse(), "a second call must not rebuild the response")
}

func TestEnsureResponseRequestBuildsReply(t *testing.T) {
	tx := newTestTransaction(wire.MessageTypeRequest)
	resp := tx.EnsureResponse()
	require.NotNil(t, resp)
	assert.Equal(t, wire.MessageTypeReply, resp.MessageType)
}
