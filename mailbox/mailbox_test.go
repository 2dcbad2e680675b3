package mailbox

import (
	"encoding/json"
	"testing"

	"github.com/najoast/actorsys/proto"
	"github.com/stretchr/testify/require"
)

func mustEnvelope(t *testing.T, n int) *proto.Envelope {
	t.Helper()
	env, err := proto.NewEnvelope("Test.Seq", map[string]int{"n": n})
	require.NoError(t, err)
	return env
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	m := New("actor-1", nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Enqueue(mustEnvelope(t, i)))
	}
	require.Equal(t, 5, m.Size())

	for i := 0; i < 5; i++ {
		env := m.Dequeue()
		require.NotNil(t, env, "dequeue %d", i)

		var payload struct{ N int }
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		require.Equal(t, i, payload.N, "dequeue order")
	}
	require.True(t, m.IsEmpty(), "expected empty mailbox after draining")
	require.Nil(t, m.Dequeue(), "expected nil dequeue on empty mailbox")
}

type countingSink struct {
	reasons []string
}

func (s *countingSink) DeadLetter(actorID string, env *proto.Envelope, reason string) {
	s.reasons = append(s.reasons, reason)
}

func TestEnqueueAfterStopDeadLetters(t *testing.T) {
	sink := &countingSink{}
	m := New("actor-1", sink)
	m.Stop()

	err := m.Enqueue(mustEnvelope(t, 0))
	require.ErrorIs(t, err, ErrStopped)
	require.Equal(t, []string{"stopped"}, sink.reasons)
}

func TestBoundedMailboxRejectsWhenFull(t *testing.T) {
	sink := &countingSink{}
	m := NewBounded("actor-1", 2, sink)

	require.NoError(t, m.Enqueue(mustEnvelope(t, 0)))
	require.NoError(t, m.Enqueue(mustEnvelope(t, 1)))
	require.ErrorIs(t, m.Enqueue(mustEnvelope(t, 2)), ErrFull)
	require.Equal(t, []string{"full"}, sink.reasons)
}

func TestClearDivertsToDeadLetter(t *testing.T) {
	sink := &countingSink{}
	m := New("actor-1", sink)
	require.NoError(t, m.Enqueue(mustEnvelope(t, 0)))
	require.NoError(t, m.Enqueue(mustEnvelope(t, 1)))

	m.Clear("discarded")

	require.True(t, m.IsEmpty())
	require.Len(t, sink.reasons, 2)
}

func TestStatsTracksCounters(t *testing.T) {
	m := New("actor-1", nil)
	require.NoError(t, m.Enqueue(mustEnvelope(t, 0)))
	require.NoError(t, m.Enqueue(mustEnvelope(t, 1)))
	m.Dequeue()

	stats := m.Stats()
	require.Equal(t, uint64(2), stats.Enqueued)
	require.Equal(t, uint64(1), stats.Dequeued)
	require.Equal(t, 1, stats.Queued)
}
