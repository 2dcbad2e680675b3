package actor

import (
	"sync"
	"time"
)

// Directive is the outcome a SupervisionStrategy assigns to a failure.
type Directive int

const (
	// Resume keeps the actor instance and its state; the failing
	// envelope is skipped.
	Resume Directive = iota

	// Restart discards the instance and builds a fresh one via the
	// factory; the mailbox is preserved and the failing envelope is not
	// redelivered.
	Restart

	// Stop transitions the actor to STOPPING then STOPPED.
	Stop

	// Escalate hands the failure to the parent/service-level handler;
	// if nothing handles it, it is treated as Stop.
	Escalate
)

func (d Directive) String() string {
	switch d {
	case Resume:
		return "RESUME"
	case Restart:
		return "RESTART"
	case Stop:
		return "STOP"
	case Escalate:
		return "ESCALATE"
	default:
		return "UNKNOWN"
	}
}

// Scope controls which actors a directive applies to.
type Scope int

const (
	// OneForOne applies the directive to the failing actor only.
	OneForOne Scope = iota

	// AllForOne applies the directive to every actor spawned by the same
	// parent within one ActorSystem. Cross-service AllForOne groupings
	// are not supported: the source material has no formal cross-service
	// parent/child registration, so this is intentionally local-only.
	AllForOne
)

// ErrorMatcher decides whether a failure is handled by a rule.
type ErrorMatcher func(err error) bool

// MatchAny always matches; useful as a catch-all final rule.
func MatchAny(error) bool { return true }

// Rule maps a matched error class to a directive.
type Rule struct {
	Matches   ErrorMatcher
	Directive Directive
}

// Strategy is an ordered list of rules plus a default, with a bounded
// retry window for RESTART. It is built from scratch for this project:
// the upstream Supervisor interface this is modeled on declares only
// Watch/Unwatch/Restart with no directive-mapping body.
type Strategy struct {
	Scope       Scope
	Rules       []Rule
	Default     Directive
	MaxRetries  int
	TimeRange   time.Duration

	mu      sync.Mutex
	history map[string][]time.Time // actorID -> restart timestamps within TimeRange
}

// NewStrategy builds a Strategy. A MaxRetries of 0 means restarts are
// never bounded (an Escalate never triggers from exhaustion).
func NewStrategy(scope Scope, maxRetries int, timeRange time.Duration, rules ...Rule) *Strategy {
	return &Strategy{
		Scope:      scope,
		Rules:      rules,
		Default:    Restart,
		MaxRetries: maxRetries,
		TimeRange:  timeRange,
		history:    make(map[string][]time.Time),
	}
}

// Decide returns the directive for err, applying the first matching rule
// or the strategy's default. When the decision is Restart, Decide also
// enforces the max-retries/time-range window for actorID and escalates
// once the window is exceeded.
func (s *Strategy) Decide(actorID string, err error) Directive {
	directive := s.Default
	for _, rule := range s.Rules {
		if rule.Matches(err) {
			directive = rule.Directive
			break
		}
	}

	if directive != Restart || s.MaxRetries <= 0 {
		return directive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.TimeRange)
	history := s.history[actorID]

	kept := history[:0]
	for _, t := range history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.history[actorID] = kept

	if len(kept) > s.MaxRetries {
		return Escalate
	}
	return Restart
}

// Reset clears the restart history for actorID, e.g. after a clean run
// of sufficient length or an explicit administrative reset.
func (s *Strategy) Reset(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, actorID)
}

// DefaultStrategy returns a OneForOne strategy that restarts on any
// error, bounded to 10 retries in a minute before escalating.
func DefaultStrategy() *Strategy {
	return NewStrategy(OneForOne, 10, time.Minute, Rule{Matches: MatchAny, Directive: Restart})
}
