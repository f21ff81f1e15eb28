package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventSLAPaused           EventType = "sla_paused"
	EventSLAResumed          EventType = "sla_resumed"
	EventSLABreached         EventType = "sla_breached"
	EventSLAReclassified     EventType = "sla_reclassified"
	EventSLAFirstResponse    EventType = "sla_first_response"
)

// AllEventTypes lists every type a sink may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventSLAPaused,
	EventSLAResumed,
	EventSLABreached,
	EventSLAReclassified,
	EventSLAFirstResponse,
}

// Actor identifies who caused an event. Empty for scheduler-driven events.
type Actor struct {
	ID   string      `json:"id,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

// ActorOf converts a domain actor.
func ActorOf(a domain.Actor) Actor {
	return Actor{ID: a.ID, Role: a.Role}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Classification string                `json:"classification"`
	Priority       domain.TicketPriority `json:"priority"`
	Policy         string                `json:"policy"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus   domain.TicketStatus `json:"old_status"`
	NewStatus   domain.TicketStatus `json:"new_status"`
	Reason      string              `json:"reason,omitempty"`
	SideEffects []string            `json:"side_effects,omitempty"`
}

// SLAPausedPayload payload.
type SLAPausedPayload struct {
	Reason        string        `json:"reason"`
	ElapsedActive time.Duration `json:"elapsed_active_ns"`
}

// SLAResumedPayload payload.
type SLAResumedPayload struct {
	ElapsedActive time.Duration `json:"elapsed_active_ns"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Targets       []string      `json:"targets"`
	Policy        string        `json:"policy"`
	ElapsedActive time.Duration `json:"elapsed_active_ns"`
}

// SLAReclassifiedPayload payload.
type SLAReclassifiedPayload struct {
	Classification string                `json:"classification"`
	Priority       domain.TicketPriority `json:"priority"`
	Policy         string                `json:"policy"`
}

// SLAFirstResponsePayload payload.
type SLAFirstResponsePayload struct {
	Elapsed time.Duration `json:"elapsed_ns"`
}
