package domain

import "time"

// RecordKind captures what an audit entry describes.
type RecordKind string

const (
	RecordKindTransition       RecordKind = "transition"
	RecordKindSLAStarted       RecordKind = "sla_started"
	RecordKindSLAPaused        RecordKind = "sla_paused"
	RecordKindSLAResumed       RecordKind = "sla_resumed"
	RecordKindSLABreached      RecordKind = "sla_breached"
	RecordKindSLAStopped       RecordKind = "sla_stopped"
	RecordKindSLAReactivated   RecordKind = "sla_reactivated"
	RecordKindSLAFirstResponse RecordKind = "sla_first_response"
	RecordKindSLAClockReset    RecordKind = "sla_first_response_reset"
	RecordKindSLAReclassified  RecordKind = "sla_reclassified"
)

// TransitionRecord is an immutable audit trail entry. Seq is assigned by
// storage on append and breaks ties between equal OccurredAt values.
type TransitionRecord struct {
	ID         string
	Seq        int64
	TicketID   string
	Kind       RecordKind
	FromStatus TicketStatus
	ToStatus   TicketStatus
	ActorID    string
	ActorRole  Role
	Reason     string
	Details    map[string]any
	OccurredAt time.Time
}
