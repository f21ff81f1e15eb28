package domain

import "time"

// Policy is a resolved SLA policy bound to a ticket. Calendar names a
// business calendar in the policy catalog.
type Policy struct {
	Name                string
	Classification      string
	Priority            TicketPriority
	FirstResponseTarget time.Duration
	ResolutionTarget    time.Duration
	Calendar            string
}

// SLAState is the per-ticket time accounting record.
//
// While Paused, ClockStartedAt is not used for accrual and elapsed time is
// frozen at AccumulatedActive. AccumulatedActive never decreases and the
// breach flags never clear.
type SLAState struct {
	TicketID          string
	Policy            Policy
	ClockStartedAt    time.Time
	AccumulatedActive time.Duration
	Paused            bool
	PauseReason       string

	// FirstResponseBaseline is the active time at which the first-response
	// clock last (re)started.
	FirstResponseBaseline time.Duration
	FirstRespondedAt      *time.Time
	// FirstResponseElapsed is frozen when FirstRespondedAt is set.
	FirstResponseElapsed time.Duration

	FirstResponseBreached bool
	ResolutionBreached    bool

	// Stopped is set when the ticket closes; pause and resume are refused.
	Stopped bool

	Version   int64
	UpdatedAt time.Time
}

// Breached reports whether any target has been missed.
func (s *SLAState) Breached() bool {
	return s.FirstResponseBreached || s.ResolutionBreached
}

// Clone returns a deep copy.
func (s *SLAState) Clone() *SLAState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.FirstRespondedAt != nil {
		at := *s.FirstRespondedAt
		cp.FirstRespondedAt = &at
	}
	return &cp
}

// BreachStatus reports target breaches for one ticket.
type BreachStatus struct {
	FirstResponseBreached bool
	ResolutionBreached    bool
}

// Any reports whether either target is breached.
func (b BreachStatus) Any() bool {
	return b.FirstResponseBreached || b.ResolutionBreached
}
