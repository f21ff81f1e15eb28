package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload. ID is optional.
type CreateTicketRequest struct {
	ID             string                `json:"id"`
	Classification string                `json:"classification"`
	Priority       domain.TicketPriority `json:"priority"`
}

// TicketResponse describes a ticket.
type TicketResponse struct {
	ID             string                `json:"id"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	Classification string                `json:"classification"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// CreateTicketResponse returns the new ticket and its SLA.
type CreateTicketResponse struct {
	Ticket TicketResponse `json:"ticket"`
	SLA    SLAResponse    `json:"sla"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	From   domain.TicketStatus `json:"from"`
	To     domain.TicketStatus `json:"to"`
	Reason string              `json:"reason"`
}

// TransitionResponse describes a committed transition.
type TransitionResponse struct {
	TicketID    string              `json:"ticket_id"`
	Status      domain.TicketStatus `json:"status"`
	SideEffects []string            `json:"side_effects"`
	Breached    []string            `json:"breached,omitempty"`
	SLA         SLAResponse         `json:"sla"`
	Record      RecordResponse      `json:"record"`
}

// PolicyResponse describes the bound SLA policy.
type PolicyResponse struct {
	Name                  string                `json:"name"`
	Classification        string                `json:"classification"`
	Priority              domain.TicketPriority `json:"priority"`
	FirstResponseTargetMS int64                 `json:"first_response_target_ms"`
	ResolutionTargetMS    int64                 `json:"resolution_target_ms"`
	Calendar              string                `json:"calendar"`
}

// SLAResponse reports SLA accounting as of a point in time.
type SLAResponse struct {
	TicketID               string         `json:"ticket_id"`
	Policy                 PolicyResponse `json:"policy"`
	ElapsedActiveMS        int64          `json:"elapsed_active_ms"`
	FirstResponseElapsedMS int64          `json:"first_response_elapsed_ms"`
	FirstRespondedAt       *time.Time     `json:"first_responded_at,omitempty"`
	FirstResponseBreached  bool           `json:"first_response_breached"`
	ResolutionBreached     bool           `json:"resolution_breached"`
	IsPaused               bool           `json:"is_paused"`
	PauseReason            string         `json:"pause_reason,omitempty"`
	Stopped                bool           `json:"stopped"`
	AsOf                   time.Time      `json:"as_of"`
}

// PauseRequest payload.
type PauseRequest struct {
	Reason string `json:"reason"`
}

// ReclassifyRequest payload.
type ReclassifyRequest struct {
	Classification string                `json:"classification"`
	Priority       domain.TicketPriority `json:"priority"`
}

// RecordResponse is one audit trail entry.
type RecordResponse struct {
	ID         string              `json:"id"`
	Seq        int64               `json:"seq"`
	Kind       domain.RecordKind   `json:"kind"`
	FromStatus domain.TicketStatus `json:"from_status,omitempty"`
	ToStatus   domain.TicketStatus `json:"to_status,omitempty"`
	ActorID    string              `json:"actor_id,omitempty"`
	ActorRole  domain.Role         `json:"actor_role,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Details    map[string]any      `json:"details,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// RuleResponse is one transition table entry.
type RuleResponse struct {
	From           domain.TicketStatus `json:"from"`
	To             domain.TicketStatus `json:"to"`
	AllowedRoles   []domain.Role       `json:"allowed_roles"`
	RequiresReason bool                `json:"requires_reason"`
	SideEffects    []string            `json:"side_effects"`
}
