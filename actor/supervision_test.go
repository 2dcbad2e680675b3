package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type illegalState struct{ error }

func newIllegalState(msg string) error { return &illegalState{errors.New(msg)} }

func isIllegalState(err error) bool {
	_, ok := err.(*illegalState)
	return ok
}

func TestStrategyDecideMatchesRule(t *testing.T) {
	s := NewStrategy(OneForOne, 5, time.Minute,
		Rule{Matches: isIllegalState, Directive: Restart},
	)
	s.Default = Stop

	require.Equal(t, Restart, s.Decide("a1", newIllegalState("boom")))
	require.Equal(t, Stop, s.Decide("a1", errors.New("other")))
}

func TestStrategyEscalatesAfterMaxRetries(t *testing.T) {
	s := NewStrategy(OneForOne, 2, time.Minute, Rule{Matches: MatchAny, Directive: Restart})

	require.Equal(t, Restart, s.Decide("a1", errors.New("e1")))
	require.Equal(t, Restart, s.Decide("a1", errors.New("e2")))
	require.Equal(t, Escalate, s.Decide("a1", errors.New("e3")), "max_retries=2 exceeded")
}

func TestStrategyRetryWindowExpires(t *testing.T) {
	s := NewStrategy(OneForOne, 1, 10*time.Millisecond, Rule{Matches: MatchAny, Directive: Restart})

	require.Equal(t, Restart, s.Decide("a1", errors.New("e1")))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, Restart, s.Decide("a1", errors.New("e2")), "history should have aged out")
}

func TestStrategyResetClearsHistory(t *testing.T) {
	s := NewStrategy(OneForOne, 1, time.Minute, Rule{Matches: MatchAny, Directive: Restart})

	s.Decide("a1", errors.New("e1"))
	s.Decide("a1", errors.New("e2"))
	s.Reset("a1")

	require.Equal(t, Restart, s.Decide("a1", errors.New("e3")))
}

func TestDefaultStrategyScope(t *testing.T) {
	require.Equal(t, OneForOne, DefaultStrategy().Scope)
}
