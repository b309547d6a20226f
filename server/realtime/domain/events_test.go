package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"message.send","order_id":"order-1","body":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, EventMessageSend, env.Type)
	assert.Equal(t, "order-1", env.OrderID)
	assert.Equal(t, "hello", env.Body)
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"type":`,
		"not an object": `[1,2,3]`,
		"missing type":  `{"order_id":"order-1"}`,
		"blank type":    `{"type":"   "}`,
		"empty frame":   ``,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestDecodeEnvelopeUnknownTypePassesThrough(t *testing.T) {
	// the dispatcher owns rejection of unknown types
	env, err := DecodeEnvelope([]byte(`{"type":"future.event"}`))
	require.NoError(t, err)
	assert.Equal(t, "future.event", env.Type)
}

func TestEnvelopeEncodeOmitsEmptyFields(t *testing.T) {
	raw := Envelope{Type: EventRoomJoin, OrderID: "order-1"}.Encode()
	assert.JSONEq(t, `{"type":"room.join","order_id":"order-1"}`, string(raw))
}

func TestNewErrorEnvelope(t *testing.T) {
	env := NewErrorEnvelope("order-1", "no access to this order")
	assert.Equal(t, EventError, env.Type)
	assert.Equal(t, "order-1", env.OrderID)
	assert.Equal(t, "no access to this order", env.Error)
}
