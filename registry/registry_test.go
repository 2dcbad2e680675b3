package registry

import (
	"testing"

	"github.com/najoast/actorsys/proto"
	"github.com/stretchr/testify/require"
)

func TestCreateAndLookup(t *testing.T) {
	r := New()
	defer r.Close()

	rec, err := r.Create("a1", "EchoActor", "svc-1", "http://h1", map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, proto.StatusCreated, rec.Status)

	got, ok := r.LookupByID("a1")
	require.True(t, ok, "expected actor a1 to be found")
	require.Equal(t, "svc-1", got.ServiceID)
}

func TestCreateDuplicateIDFails(t *testing.T) {
	r := New()
	defer r.Close()

	_, err := r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	require.NoError(t, err)
	_, err = r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	require.Error(t, err, "expected duplicate create to fail")
}

func TestLookupByServiceSecondaryIndex(t *testing.T) {
	r := New()
	defer r.Close()

	_, _ = r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	_, _ = r.Create("a2", "EchoActor", "svc-1", "http://h1", nil)
	_, _ = r.Create("a3", "EchoActor", "svc-2", "http://h2", nil)

	require.Len(t, r.LookupByService("svc-1"), 2)
}

func TestDeleteRemovesFromBothIndexes(t *testing.T) {
	r := New()
	defer r.Close()

	_, _ = r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	require.NoError(t, r.Delete("a1"))

	_, ok := r.LookupByID("a1")
	require.False(t, ok, "expected a1 to be gone from primary index")
	require.Empty(t, r.LookupByService("svc-1"))
}

func TestMarkServiceAvailabilityFlipsActiveActorsOnly(t *testing.T) {
	r := New()
	defer r.Close()

	_, _ = r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	_, _ = r.Create("a2", "EchoActor", "svc-1", "http://h1", nil)
	require.NoError(t, r.MarkActive("a1"))
	require.NoError(t, r.MarkActive("a2"))
	require.NoError(t, r.Delete("a2")) // a2 gone; shouldn't resurface
	_, _ = r.Create("a2", "EchoActor", "svc-1", "http://h1", nil) // recreated as CREATED, not ACTIVE

	require.NoError(t, r.MarkServiceAvailability("svc-1", false))
	rec1, _ := r.LookupByID("a1")
	require.Equal(t, proto.StatusUnavailable, rec1.Status)
	rec2, _ := r.LookupByID("a2")
	require.Equal(t, proto.StatusCreated, rec2.Status, "a2 was never ACTIVE, so it should be unaffected")

	require.NoError(t, r.MarkServiceAvailability("svc-1", true))
	rec1, _ = r.LookupByID("a1")
	require.Equal(t, proto.StatusActive, rec1.Status)
}

func TestExplicitlyStoppedActorDoesNotComeBackActive(t *testing.T) {
	r := New()
	defer r.Close()

	_, _ = r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	require.NoError(t, r.MarkActive("a1"))

	require.NoError(t, r.MarkServiceAvailability("svc-1", false))

	rec, _ := r.LookupByID("a1")
	require.Equal(t, proto.StatusUnavailable, rec.Status)

	res := r.send(command{kind: opSetStatus, actorID: "a1", status: proto.StatusStopped})
	require.NoError(t, res.err)
	require.NoError(t, r.MarkServiceAvailability("svc-1", true))

	rec, _ = r.LookupByID("a1")
	require.Equal(t, proto.StatusStopped, rec.Status, "a recovery must not resurrect a stopped actor")
}

func TestList(t *testing.T) {
	r := New()
	defer r.Close()

	_, _ = r.Create("a1", "EchoActor", "svc-1", "http://h1", nil)
	_, _ = r.Create("a2", "EchoActor", "svc-2", "http://h2", nil)

	require.Len(t, r.List(), 2)
}
