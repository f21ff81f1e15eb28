// Package rules holds the declarative table of allowed status transitions.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// SideEffect is an SLA tracker action attached to a transition.
type SideEffect string

const (
	EffectPauseSLA                SideEffect = "PAUSE_SLA"
	EffectResumeSLA               SideEffect = "RESUME_SLA"
	EffectResetFirstResponseClock SideEffect = "RESET_FIRST_RESPONSE_CLOCK"
	// EffectStopSLA freezes accounting when a ticket closes.
	EffectStopSLA SideEffect = "STOP_SLA"
	// EffectReactivateSLA lifts a stop; it leaves the clock paused.
	EffectReactivateSLA SideEffect = "REACTIVATE_SLA"
)

// Valid reports whether e is a known side effect.
func (e SideEffect) Valid() bool {
	switch e {
	case EffectPauseSLA, EffectResumeSLA, EffectResetFirstResponseClock, EffectStopSLA, EffectReactivateSLA:
		return true
	}
	return false
}

// Rule is one table entry.
type Rule struct {
	From           domain.TicketStatus
	To             domain.TicketStatus
	AllowedRoles   []domain.Role
	RequiresReason bool
	SideEffects    []SideEffect
}

// Allows reports whether role is in the rule's allowed set.
func (r Rule) Allows(role domain.Role) bool {
	for _, allowed := range r.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

type edge struct {
	from domain.TicketStatus
	to   domain.TicketStatus
}

// Table is an immutable set of rules keyed by (from, to).
type Table struct {
	rules map[edge]Rule
}

// NewTable validates rules and builds a table.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{rules: make(map[edge]Rule, len(rules))}
	for _, r := range rules {
		if !r.From.Valid() || !r.To.Valid() {
			return nil, fmt.Errorf("rules: unknown status in %s->%s", r.From, r.To)
		}
		if r.From == r.To {
			return nil, fmt.Errorf("rules: self transition %s is always a no-op", r.From)
		}
		if len(r.AllowedRoles) == 0 {
			return nil, fmt.Errorf("rules: %s->%s allows no role", r.From, r.To)
		}
		for _, role := range r.AllowedRoles {
			if !role.Valid() {
				return nil, fmt.Errorf("rules: %s->%s: unknown role %q", r.From, r.To, role)
			}
		}
		for _, eff := range r.SideEffects {
			if !eff.Valid() {
				return nil, fmt.Errorf("rules: %s->%s: unknown side effect %q", r.From, r.To, eff)
			}
		}
		k := edge{from: r.From, to: r.To}
		if _, dup := t.rules[k]; dup {
			return nil, fmt.Errorf("rules: duplicate entry %s->%s", r.From, r.To)
		}
		t.rules[k] = r
	}
	return t, nil
}

// Lookup returns the rule for (from, to) after checking role and reason.
func (t *Table) Lookup(from, to domain.TicketStatus, role domain.Role, reason string) (Rule, error) {
	details := map[string]any{"from": from, "to": to, "role": role}
	if from == to {
		return Rule{}, apperrors.NewNoOpTransition(details)
	}
	rule, ok := t.rules[edge{from: from, to: to}]
	if !ok {
		return Rule{}, apperrors.NewTransitionNotAllowed(details)
	}
	if !rule.Allows(role) {
		return Rule{}, apperrors.NewInsufficientRole(details)
	}
	if rule.RequiresReason && strings.TrimSpace(reason) == "" {
		return Rule{}, apperrors.NewReasonRequired(details)
	}
	return rule, nil
}

// Rules returns the entries ordered by (from, to).
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
