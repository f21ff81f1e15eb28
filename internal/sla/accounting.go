// Package sla tracks active time against SLA targets.
//
// The functions in this file are pure: they read or mutate a single
// SLAState value and never touch storage. Callers mutate a clone and commit
// it once, which keeps status, SLA state and audit trail in step.
package sla

import (
	"strings"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/calendar"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/rules"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// StoppedReason is recorded as the pause reason once tracking stops.
const StoppedReason = "ticket closed"

// Breach target names used in audit details and metrics.
const (
	TargetFirstResponse = "first_response"
	TargetResolution    = "resolution"
)

// NewState returns a running state bound to policy, started at now.
func NewState(ticketID string, policy domain.Policy, now time.Time) *domain.SLAState {
	return &domain.SLAState{
		TicketID:       ticketID,
		Policy:         policy,
		ClockStartedAt: now,
	}
}

// Elapsed returns total active time as of now.
func Elapsed(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) time.Duration {
	if st.Paused {
		return st.AccumulatedActive
	}
	return st.AccumulatedActive + calendar.ActiveDurationBetween(cal, st.ClockStartedAt, now)
}

// FirstResponseElapsed returns active time counted against the first
// response target. It is frozen once a first response is recorded.
func FirstResponseElapsed(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) time.Duration {
	if st.FirstRespondedAt != nil {
		return st.FirstResponseElapsed
	}
	d := Elapsed(st, cal, now) - st.FirstResponseBaseline
	if d < 0 {
		return 0
	}
	return d
}

// Evaluate reports breaches as of now, including flags already set.
// A zero target never breaches.
func Evaluate(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) domain.BreachStatus {
	out := domain.BreachStatus{
		FirstResponseBreached: st.FirstResponseBreached,
		ResolutionBreached:    st.ResolutionBreached,
	}
	if t := st.Policy.FirstResponseTarget; t > 0 && FirstResponseElapsed(st, cal, now) >= t {
		out.FirstResponseBreached = true
	}
	if t := st.Policy.ResolutionTarget; t > 0 && Elapsed(st, cal, now) >= t {
		out.ResolutionBreached = true
	}
	return out
}

// MarkBreaches sets any breach flags that Evaluate reports and returns the
// targets that were newly breached. Flags are never cleared.
func MarkBreaches(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) []string {
	eval := Evaluate(st, cal, now)
	var newly []string
	if eval.FirstResponseBreached && !st.FirstResponseBreached {
		st.FirstResponseBreached = true
		newly = append(newly, TargetFirstResponse)
	}
	if eval.ResolutionBreached && !st.ResolutionBreached {
		st.ResolutionBreached = true
		newly = append(newly, TargetResolution)
	}
	return newly
}

// accrue folds running time into AccumulatedActive and restarts the clock
// at now. ClockStartedAt never moves backwards.
func accrue(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) {
	if st.Paused {
		return
	}
	st.AccumulatedActive += calendar.ActiveDurationBetween(cal, st.ClockStartedAt, now)
	if now.After(st.ClockStartedAt) {
		st.ClockStartedAt = now
	}
}

// Pause freezes the clock. It reports false when already paused. A paused
// state always carries a reason, so a blank one is rejected.
func Pause(st *domain.SLAState, cal *calendar.BusinessCalendar, reason string, now time.Time) (bool, error) {
	if st.Stopped {
		return false, apperrors.NewTrackingClosed(st.TicketID)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, apperrors.NewReasonRequired(map[string]any{"ticket_id": st.TicketID})
	}
	if st.Paused {
		return false, nil
	}
	accrue(st, cal, now)
	st.Paused = true
	st.PauseReason = reason
	return true, nil
}

// Resume restarts the clock at now. It reports false when already running.
func Resume(st *domain.SLAState, now time.Time) (bool, error) {
	if st.Stopped {
		return false, apperrors.NewTrackingClosed(st.TicketID)
	}
	if !st.Paused {
		return false, nil
	}
	st.Paused = false
	st.PauseReason = ""
	if now.After(st.ClockStartedAt) {
		st.ClockStartedAt = now
	}
	return true, nil
}

// Stop freezes accounting permanently until Reactivate.
func Stop(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) bool {
	if st.Stopped {
		return false
	}
	accrue(st, cal, now)
	st.Paused = true
	st.PauseReason = StoppedReason
	st.Stopped = true
	return true
}

// Reactivate lifts a stop. The clock stays paused until resumed.
func Reactivate(st *domain.SLAState) bool {
	if !st.Stopped {
		return false
	}
	st.Stopped = false
	return true
}

// ResetFirstResponse restarts the first-response measurement from the
// current active time. Breach flags are kept.
func ResetFirstResponse(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) bool {
	st.FirstResponseBaseline = Elapsed(st, cal, now)
	st.FirstRespondedAt = nil
	st.FirstResponseElapsed = 0
	return true
}

// MarkFirstResponse freezes the first-response measurement. It reports false
// when a response was already recorded.
func MarkFirstResponse(st *domain.SLAState, cal *calendar.BusinessCalendar, now time.Time) bool {
	if st.FirstRespondedAt != nil {
		return false
	}
	st.FirstResponseElapsed = FirstResponseElapsed(st, cal, now)
	at := now
	st.FirstRespondedAt = &at
	return true
}

// Reclassify binds a new policy from now on. Time accrued so far is counted
// under the old calendar and is kept, as are breach flags.
func Reclassify(st *domain.SLAState, oldCal *calendar.BusinessCalendar, policy domain.Policy, now time.Time) bool {
	if st.Policy == policy {
		return false
	}
	accrue(st, oldCal, now)
	st.Policy = policy
	return true
}

// Apply runs one rule side effect against st and reports whether st changed.
func Apply(st *domain.SLAState, cal *calendar.BusinessCalendar, effect rules.SideEffect, reason string, now time.Time) (bool, error) {
	switch effect {
	case rules.EffectPauseSLA:
		return Pause(st, cal, reason, now)
	case rules.EffectResumeSLA:
		return Resume(st, now)
	case rules.EffectResetFirstResponseClock:
		return ResetFirstResponse(st, cal, now), nil
	case rules.EffectStopSLA:
		return Stop(st, cal, now), nil
	case rules.EffectReactivateSLA:
		return Reactivate(st), nil
	}
	return false, apperrors.NewValidationError("unknown side effect", map[string]any{"effect": string(effect)})
}
