package proto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	wire := `{"type":"X.Ping","messageId":"m1","timestamp":"2025-01-01T00:00:00Z","correlationId":null,"payload":{"n":42}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(wire), &env))

	require.Equal(t, "X.Ping", env.Type)
	require.Equal(t, "m1", env.MessageID)
	require.Empty(t, env.CorrelationID)

	wantTime, err := time.Parse(time.RFC3339, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	require.True(t, env.Timestamp.Equal(wantTime))

	var payload struct{ N int }
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, 42, payload.N)

	out, err := json.Marshal(&env)
	require.NoError(t, err)

	var roundTripped Envelope
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	require.Equal(t, env.Type, roundTripped.Type)
	require.Equal(t, env.MessageID, roundTripped.MessageID)
	require.True(t, roundTripped.Timestamp.Equal(env.Timestamp))
}

func TestNewEnvelopeGeneratesIDAndTimestamp(t *testing.T) {
	env, err := NewEnvelope("Test.Msg", map[string]int{"a": 1})
	require.NoError(t, err)
	require.NotEmpty(t, env.MessageID)
	require.False(t, env.Timestamp.IsZero())

	var payload struct{ A int }
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Equal(t, 1, payload.A)
}

func TestTellCommandWireShape(t *testing.T) {
	env, err := NewEnvelope("Test.Msg", map[string]int{"a": 1})
	require.NoError(t, err)
	cmd := TellCommand{TargetActorID: "a1", SenderActorID: "a2", Message: env}

	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	var decoded TellCommand
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "a1", decoded.TargetActorID)
	require.Equal(t, "a2", decoded.SenderActorID)
	require.NotNil(t, decoded.Message)
	require.Equal(t, env.MessageID, decoded.Message.MessageID)
}
