package rules

import "github.com/spec-kit/ticket-lifecycle/internal/domain"

var (
	staff       = []domain.Role{domain.RoleAgent, domain.RoleAdmin}
	staffOrUser = []domain.Role{domain.RoleAgent, domain.RoleAdmin, domain.RoleCustomer}
)

// DefaultRules returns the standard workflow.
func DefaultRules() []Rule {
	return []Rule{
		{From: domain.TicketStatusOpen, To: domain.TicketStatusPending, AllowedRoles: staff, SideEffects: []SideEffect{EffectPauseSLA}},
		{From: domain.TicketStatusPending, To: domain.TicketStatusOpen, AllowedRoles: staff, SideEffects: []SideEffect{EffectResumeSLA}},
		{From: domain.TicketStatusOpen, To: domain.TicketStatusOnHold, AllowedRoles: staff, RequiresReason: true, SideEffects: []SideEffect{EffectPauseSLA}},
		{From: domain.TicketStatusPending, To: domain.TicketStatusOnHold, AllowedRoles: staff, RequiresReason: true, SideEffects: []SideEffect{EffectPauseSLA}},
		{From: domain.TicketStatusOnHold, To: domain.TicketStatusOpen, AllowedRoles: staff, SideEffects: []SideEffect{EffectResumeSLA}},
		{From: domain.TicketStatusOpen, To: domain.TicketStatusResolved, AllowedRoles: staff},
		{From: domain.TicketStatusPending, To: domain.TicketStatusResolved, AllowedRoles: staff},
		{From: domain.TicketStatusResolved, To: domain.TicketStatusClosed, AllowedRoles: staff, SideEffects: []SideEffect{EffectStopSLA}},
		{From: domain.TicketStatusResolved, To: domain.TicketStatusReopened, AllowedRoles: staffOrUser, RequiresReason: true, SideEffects: []SideEffect{EffectResumeSLA}},
		{From: domain.TicketStatusClosed, To: domain.TicketStatusReopened, AllowedRoles: staffOrUser, RequiresReason: true, SideEffects: []SideEffect{EffectReactivateSLA, EffectResumeSLA}},

		// A reopened ticket re-enters the working states.
		{From: domain.TicketStatusReopened, To: domain.TicketStatusOpen, AllowedRoles: staff},
		{From: domain.TicketStatusReopened, To: domain.TicketStatusPending, AllowedRoles: staff, SideEffects: []SideEffect{EffectPauseSLA}},
		{From: domain.TicketStatusReopened, To: domain.TicketStatusOnHold, AllowedRoles: staff, RequiresReason: true, SideEffects: []SideEffect{EffectPauseSLA}},
		{From: domain.TicketStatusReopened, To: domain.TicketStatusResolved, AllowedRoles: staff},
	}
}

// Default returns a table built from DefaultRules.
func Default() *Table {
	t, err := NewTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}
