// Package workflow interprets the transition rule table against stored
// tickets.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/lock"
	"github.com/spec-kit/ticket-lifecycle/internal/policy"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/rules"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TransitionRequest asks to move a ticket from one status to another.
type TransitionRequest struct {
	TicketID string
	From     domain.TicketStatus
	To       domain.TicketStatus
	Actor    domain.Actor
	Reason   string
}

// TransitionResult is the committed outcome of a transition.
type TransitionResult struct {
	Status   domain.TicketStatus
	SLA      *domain.SLAState
	Record   domain.TransitionRecord
	Effects  []rules.SideEffect
	Breached []string
}

// NewTicket describes a ticket to create.
type NewTicket struct {
	ID             string
	Classification string
	Priority       domain.TicketPriority
	Actor          domain.Actor
}

// Config wires the engine's collaborators.
type Config struct {
	Store       repository.Store
	Locks       lock.Locker
	Rules       *rules.Table
	Policies    policy.Resolver
	Clock       clock.Clock
	Logger      *zap.Logger
	LockTimeout time.Duration
}

// Engine executes status transitions. Status, SLA state and the audit entry
// for one transition are committed as a single storage mutation.
type Engine struct {
	store       repository.Store
	locks       lock.Locker
	rules       *rules.Table
	policies    policy.Resolver
	clock       clock.Clock
	logger      *zap.Logger
	lockTimeout time.Duration
}

// NewEngine builds an engine. Nil Clock and Logger fall back to the real
// clock and a no-op logger.
func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		store:       cfg.Store,
		locks:       cfg.Locks,
		rules:       cfg.Rules,
		policies:    cfg.Policies,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		lockTimeout: cfg.LockTimeout,
	}
}

// Rules exposes the table the engine interprets.
func (e *Engine) Rules() *rules.Table {
	return e.rules
}

// ExecuteTransition validates req against the rule table and the ticket's
// current status, applies the rule's SLA side effects and commits.
func (e *Engine) ExecuteTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	details := map[string]any{
		"ticket_id": req.TicketID,
		"from":      req.From,
		"to":        req.To,
	}
	if req.From == req.To {
		return nil, apperrors.NewNoOpTransition(details)
	}
	rule, err := e.rules.Lookup(req.From, req.To, req.Actor.Role, req.Reason)
	if err != nil {
		if de := apperrors.ToDomainError(err); de.Details != nil {
			de.Details["ticket_id"] = req.TicketID
		}
		return nil, err
	}

	release, err := lock.AcquireTicket(ctx, e.locks, req.TicketID, e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := e.store.GetTicket(ctx, req.TicketID)
	if err != nil {
		return nil, repository.TranslateError(err, req.TicketID, details)
	}
	if ticket.Status != req.From {
		details["current"] = ticket.Status
		return nil, apperrors.NewStaleTransition(details)
	}

	current, err := e.store.GetSLAState(ctx, req.TicketID)
	if err != nil {
		return nil, repository.TranslateError(err, req.TicketID, details)
	}
	cal, err := e.policies.Calendar(current.Policy.Calendar)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	next := current.Clone()
	pauseReason := strings.TrimSpace(req.Reason)
	if pauseReason == "" {
		pauseReason = StatusPauseReason(rule.To)
	}
	var applied []rules.SideEffect
	for _, effect := range rule.SideEffects {
		changed, err := sla.Apply(next, cal, effect, pauseReason, now)
		if err != nil {
			return nil, err
		}
		if changed {
			applied = append(applied, effect)
		}
	}
	newly := sla.MarkBreaches(next, cal, now)

	reason := strings.TrimSpace(req.Reason)
	record := &domain.TransitionRecord{
		ID:         uuid.NewString(),
		TicketID:   req.TicketID,
		Kind:       domain.RecordKindTransition,
		FromStatus: rule.From,
		ToStatus:   rule.To,
		ActorID:    req.Actor.ID,
		ActorRole:  req.Actor.Role,
		Reason:     reason,
		Details:    map[string]any{"side_effects": effectNames(applied)},
		OccurredAt: now,
	}
	records := []*domain.TransitionRecord{record}
	if len(newly) > 0 {
		actx := domain.ContextWithActor(ctx, req.Actor)
		records = append(records, sla.BreachRecord(actx, req.TicketID, newly, now))
	}

	if err := e.store.Commit(ctx, repository.Mutation{
		TicketID:       req.TicketID,
		At:             now,
		ExpectedStatus: rule.From,
		NewStatus:      rule.To,
		SLA:            next,
		Records:        records,
	}); err != nil {
		err = repository.TranslateError(err, req.TicketID, details)
		if apperrors.CodeOf(err) == apperrors.CodeStorageUnavailable {
			e.logger.Error("transition commit failed",
				zap.String("ticket_id", req.TicketID),
				zap.String("from", string(req.From)),
				zap.String("to", string(req.To)),
				zap.Error(err))
		}
		return nil, err
	}

	return &TransitionResult{
		Status:   rule.To,
		SLA:      next.Clone(),
		Record:   *record,
		Effects:  applied,
		Breached: newly,
	}, nil
}

// CreateTicket resolves the SLA policy for the new ticket and stores the
// ticket, open and tracked, in one mutation.
func (e *Engine) CreateTicket(ctx context.Context, in NewTicket) (*domain.Ticket, *domain.SLAState, error) {
	classification := strings.TrimSpace(in.Classification)
	if classification == "" {
		return nil, nil, apperrors.NewValidationError("classification is required", nil)
	}
	if !in.Priority.Valid() {
		return nil, nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": in.Priority})
	}
	p, err := e.policies.Resolve(classification, in.Priority)
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.policies.Calendar(p.Calendar); err != nil {
		return nil, nil, err
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.clock.Now()
	ticket := &domain.Ticket{
		ID:             id,
		Status:         domain.TicketStatusOpen,
		Priority:       in.Priority,
		Classification: classification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	st := sla.NewState(id, p, now)
	rec := sla.NewRecord(domain.ContextWithActor(ctx, in.Actor), id, domain.RecordKindSLAStarted, now, map[string]any{"policy": p.Name})
	rec.ToStatus = domain.TicketStatusOpen

	if err := e.store.Commit(ctx, repository.Mutation{
		TicketID:  id,
		At:        now,
		NewTicket: ticket,
		SLA:       st,
		CreateSLA: true,
		Records:   []*domain.TransitionRecord{rec},
	}); err != nil {
		return nil, nil, repository.TranslateError(err, id, nil)
	}
	return ticket, st.Clone(), nil
}

// StatusPauseReason is the pause reason recorded when a transition pauses
// the clock without a caller-supplied reason.
func StatusPauseReason(to domain.TicketStatus) string {
	return "status " + string(to)
}

func effectNames(effects []rules.SideEffect) []string {
	out := make([]string, len(effects))
	for i, e := range effects {
		out[i] = string(e)
	}
	return out
}
