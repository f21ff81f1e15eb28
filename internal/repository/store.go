package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

var (
	// ErrNotFound is returned when a ticket or SLA state does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when creating a row that already exists.
	ErrDuplicate = errors.New("repository: already exists")
	// ErrConflict is returned when a guarded write lost a race: the ticket
	// status or SLA version no longer matches what the caller read.
	ErrConflict = errors.New("repository: concurrent modification")
)

// Cursor positions a history page. The zero value starts at the beginning.
type Cursor struct {
	OccurredAt time.Time
	Seq        int64
}

// After reports whether r sorts strictly after the cursor.
func (c Cursor) After(r domain.TransitionRecord) bool {
	if r.OccurredAt.Equal(c.OccurredAt) {
		return r.Seq > c.Seq
	}
	return r.OccurredAt.After(c.OccurredAt)
}

// Mutation is one atomic write. Either every part is applied or none is.
type Mutation struct {
	TicketID string
	At       time.Time

	// NewTicket creates the ticket row.
	NewTicket *domain.Ticket

	// NewStatus, when set, replaces the status if it still equals
	// ExpectedStatus.
	ExpectedStatus domain.TicketStatus
	NewStatus      domain.TicketStatus

	// Classification, when set, rebinds the ticket's classification and
	// priority.
	Classification *Classification

	// SLA, when set, is written if the stored version still equals
	// SLA.Version, or inserted when CreateSLA is true. On success
	// SLA.Version is advanced.
	SLA       *domain.SLAState
	CreateSLA bool

	// Records are appended in order. On success each gets its ID and Seq.
	Records []*domain.TransitionRecord
}

// Classification is the policy lookup key stored on a ticket.
type Classification struct {
	Classification string
	Priority       domain.TicketPriority
}

// Store is the persistence contract for ticket status, SLA state and the
// audit trail.
type Store interface {
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	GetSLAState(ctx context.Context, ticketID string) (*domain.SLAState, error)
	// ListTrackedTicketIDs returns tickets whose SLA tracking is not stopped.
	ListTrackedTicketIDs(ctx context.Context) ([]string, error)
	// ListRecords returns up to limit records after the cursor, ordered by
	// OccurredAt then Seq.
	ListRecords(ctx context.Context, ticketID string, after Cursor, limit int) ([]domain.TransitionRecord, error)
	Commit(ctx context.Context, m Mutation) error
	Ping(ctx context.Context) error
}
