package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/audit"
	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/rules"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
	"github.com/spec-kit/ticket-lifecycle/internal/workflow"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// LifecycleDependencies wires LifecycleService.
type LifecycleDependencies struct {
	Engine     *workflow.Engine
	Tracker    *sla.Tracker
	Audit      *audit.Log
	Store      repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Logger     *zap.Logger
}

// LifecycleService is the surface the rest of the application uses: the
// workflow engine, SLA tracker and audit log behind one API, with events,
// metrics and logging after each commit.
type LifecycleService struct {
	engine     *workflow.Engine
	tracker    *sla.Tracker
	audit      *audit.Log
	store      repository.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
}

// SLAView is the read model of a ticket's SLA as of a point in time.
type SLAView struct {
	TicketID              string
	Policy                domain.Policy
	ElapsedActive         time.Duration
	FirstResponseElapsed  time.Duration
	FirstRespondedAt      *time.Time
	FirstResponseBreached bool
	ResolutionBreached    bool
	IsPaused              bool
	PauseReason           string
	Stopped               bool
	AsOf                  time.Time
}

// BreachReport lists targets newly breached on one ticket.
type BreachReport struct {
	TicketID string
	Targets  []string
}

// NewLifecycleService constructs the service and subscribes it to tracker
// commits.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &LifecycleService{
		engine:     deps.Engine,
		tracker:    deps.Tracker,
		audit:      deps.Audit,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	s.tracker.OnCommit(s.trackerCommitted)
	return s
}

// Now is the service clock's current time.
func (s *LifecycleService) Now() time.Time {
	return s.clock.Now()
}

// Rules lists the transition table.
func (s *LifecycleService) Rules() []rules.Rule {
	return s.engine.Rules().Rules()
}

// CreateTicket opens a ticket and starts SLA tracking.
func (s *LifecycleService) CreateTicket(ctx context.Context, in workflow.NewTicket) (*domain.Ticket, *SLAView, error) {
	ticket, st, err := s.engine.CreateTicket(ctx, in)
	if err != nil {
		s.logger.Info("ticket creation rejected",
			zap.String("classification", in.Classification),
			zap.String("priority", string(in.Priority)),
			zap.Error(err))
		return nil, nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("policy", st.Policy.Name),
		zap.String("actor_id", in.Actor.ID))
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		Actor:     events.ActorOf(in.Actor),
		Timestamp: ticket.CreatedAt,
		Payload: events.TicketCreatedPayload{
			Classification: ticket.Classification,
			Priority:       ticket.Priority,
			Policy:         st.Policy.Name,
		},
	})
	view, err := s.View(st, ticket.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return ticket, view, nil
}

// Ticket returns the stored ticket.
func (s *LifecycleService) Ticket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, repository.TranslateError(err, ticketID, nil)
	}
	return t, nil
}

// ExecuteTransition runs one status transition.
func (s *LifecycleService) ExecuteTransition(ctx context.Context, req workflow.TransitionRequest) (*workflow.TransitionResult, error) {
	res, err := s.engine.ExecuteTransition(ctx, req)
	if err != nil {
		code := apperrors.CodeOf(err)
		s.metrics.RecordTransitionFailure(code)
		s.logger.Info("transition rejected",
			zap.String("ticket_id", req.TicketID),
			zap.String("from", string(req.From)),
			zap.String("to", string(req.To)),
			zap.String("actor_id", req.Actor.ID),
			zap.String("role", string(req.Actor.Role)),
			zap.String("code", code))
		return nil, err
	}

	s.metrics.RecordTransition(string(req.From), string(res.Status))
	s.logger.Info("transition applied",
		zap.String("ticket_id", req.TicketID),
		zap.String("from", string(req.From)),
		zap.String("to", string(res.Status)),
		zap.String("actor_id", req.Actor.ID),
		zap.String("role", string(req.Actor.Role)))

	actor := events.ActorOf(req.Actor)
	at := res.Record.OccurredAt
	effects := make([]string, len(res.Effects))
	for i, e := range res.Effects {
		effects[i] = string(e)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TicketID:  req.TicketID,
		Actor:     actor,
		Timestamp: at,
		Payload: events.TicketStatusChangedPayload{
			OldStatus:   res.Record.FromStatus,
			NewStatus:   res.Record.ToStatus,
			Reason:      res.Record.Reason,
			SideEffects: effects,
		},
	})
	for _, effect := range res.Effects {
		switch effect {
		case rules.EffectPauseSLA:
			s.publishEvent(ctx, events.Event{Type: events.EventSLAPaused, TicketID: req.TicketID, Actor: actor, Timestamp: at,
				Payload: events.SLAPausedPayload{Reason: res.SLA.PauseReason, ElapsedActive: res.SLA.AccumulatedActive}})
		case rules.EffectResumeSLA:
			s.publishEvent(ctx, events.Event{Type: events.EventSLAResumed, TicketID: req.TicketID, Actor: actor, Timestamp: at,
				Payload: events.SLAResumedPayload{ElapsedActive: res.SLA.AccumulatedActive}})
		}
	}
	if len(res.Breached) > 0 {
		s.breached(ctx, res.SLA, res.Breached, actor, at)
	}
	return res, nil
}

// GetSLA reports the SLA as of now without changing it.
func (s *LifecycleService) GetSLA(ctx context.Context, ticketID string, now time.Time) (*SLAView, error) {
	st, _, err := s.tracker.Snapshot(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.View(st, now)
}

// PauseSLA pauses the clock on an agent's request, independent of status.
func (s *LifecycleService) PauseSLA(ctx context.Context, actor domain.Actor, ticketID, reason string, now time.Time) (*SLAView, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewReasonRequired(map[string]any{"ticket_id": ticketID})
	}
	st, err := s.tracker.Pause(domain.ContextWithActor(ctx, actor), ticketID, reason, now)
	if err != nil {
		return nil, err
	}
	return s.View(st, now)
}

// ResumeSLA resumes a manually paused clock.
func (s *LifecycleService) ResumeSLA(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*SLAView, error) {
	st, err := s.tracker.Resume(domain.ContextWithActor(ctx, actor), ticketID, now)
	if err != nil {
		return nil, err
	}
	return s.View(st, now)
}

// MarkFirstResponse records the first agent reply.
func (s *LifecycleService) MarkFirstResponse(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*SLAView, error) {
	st, err := s.tracker.MarkFirstResponse(domain.ContextWithActor(ctx, actor), ticketID, now)
	if err != nil {
		return nil, err
	}
	return s.View(st, now)
}

// Reclassify changes classification and priority going forward.
func (s *LifecycleService) Reclassify(ctx context.Context, actor domain.Actor, ticketID, classification string, priority domain.TicketPriority, now time.Time) (*SLAView, error) {
	classification = strings.TrimSpace(classification)
	if classification == "" || !priority.Valid() {
		return nil, apperrors.NewValidationError("classification and a known priority are required",
			map[string]any{"ticket_id": ticketID, "priority": priority})
	}
	st, err := s.tracker.Reclassify(domain.ContextWithActor(ctx, actor), ticketID, classification, priority, now)
	if err != nil {
		return nil, err
	}
	return s.View(st, now)
}

// History returns the ticket's audit trail as a lazy sequence.
func (s *LifecycleService) History(ctx context.Context, ticketID string) iter.Seq2[domain.TransitionRecord, error] {
	return s.audit.History(ctx, ticketID)
}

// PollBreaches checks every tracked ticket and returns those with newly
// breached targets. Per-ticket failures are logged, skipped and returned
// joined.
func (s *LifecycleService) PollBreaches(ctx context.Context, now time.Time) ([]BreachReport, error) {
	ids, err := s.store.ListTrackedTicketIDs(ctx)
	if err != nil {
		return nil, apperrors.NewStorageUnavailable(err, nil)
	}
	var (
		reports []BreachReport
		errs    []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, newly, err := s.tracker.CheckBreach(ctx, id, now)
		if err != nil {
			s.logger.Warn("breach check failed", zap.String("ticket_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("ticket %s: %w", id, err))
			continue
		}
		if len(newly) > 0 {
			reports = append(reports, BreachReport{TicketID: id, Targets: newly})
		}
	}
	return reports, errors.Join(errs...)
}

// View evaluates a state snapshot as of now.
func (s *LifecycleService) View(st *domain.SLAState, now time.Time) (*SLAView, error) {
	cal, err := s.tracker.Calendar(st.Policy.Calendar)
	if err != nil {
		return nil, err
	}
	status := sla.Evaluate(st, cal, now)
	return &SLAView{
		TicketID:              st.TicketID,
		Policy:                st.Policy,
		ElapsedActive:         sla.Elapsed(st, cal, now),
		FirstResponseElapsed:  sla.FirstResponseElapsed(st, cal, now),
		FirstRespondedAt:      st.FirstRespondedAt,
		FirstResponseBreached: status.FirstResponseBreached,
		ResolutionBreached:    status.ResolutionBreached,
		IsPaused:              st.Paused,
		PauseReason:           st.PauseReason,
		Stopped:               st.Stopped,
		AsOf:                  now,
	}, nil
}

// trackerCommitted turns committed tracker records into events.
func (s *LifecycleService) trackerCommitted(ctx context.Context, st *domain.SLAState, records []domain.TransitionRecord) {
	for _, rec := range records {
		actor := events.Actor{ID: rec.ActorID, Role: rec.ActorRole}
		switch rec.Kind {
		case domain.RecordKindSLAPaused:
			s.publishEvent(ctx, events.Event{Type: events.EventSLAPaused, TicketID: rec.TicketID, Actor: actor, Timestamp: rec.OccurredAt,
				Payload: events.SLAPausedPayload{Reason: rec.Reason, ElapsedActive: st.AccumulatedActive}})
		case domain.RecordKindSLAResumed:
			s.publishEvent(ctx, events.Event{Type: events.EventSLAResumed, TicketID: rec.TicketID, Actor: actor, Timestamp: rec.OccurredAt,
				Payload: events.SLAResumedPayload{ElapsedActive: st.AccumulatedActive}})
		case domain.RecordKindSLAFirstResponse:
			s.publishEvent(ctx, events.Event{Type: events.EventSLAFirstResponse, TicketID: rec.TicketID, Actor: actor, Timestamp: rec.OccurredAt,
				Payload: events.SLAFirstResponsePayload{Elapsed: st.FirstResponseElapsed}})
		case domain.RecordKindSLAReclassified:
			s.logger.Info("sla reclassified", zap.String("ticket_id", rec.TicketID), zap.String("policy", st.Policy.Name))
			s.publishEvent(ctx, events.Event{Type: events.EventSLAReclassified, TicketID: rec.TicketID, Actor: actor, Timestamp: rec.OccurredAt,
				Payload: events.SLAReclassifiedPayload{Classification: st.Policy.Classification, Priority: st.Policy.Priority, Policy: st.Policy.Name}})
		case domain.RecordKindSLABreached:
			targets, _ := rec.Details["targets"].([]string)
			s.breached(ctx, st, targets, actor, rec.OccurredAt)
		}
	}
}

func (s *LifecycleService) breached(ctx context.Context, st *domain.SLAState, targets []string, actor events.Actor, at time.Time) {
	for _, target := range targets {
		s.metrics.RecordBreach(target)
		s.logger.Warn("sla target breached",
			zap.String("ticket_id", st.TicketID),
			zap.String("target", target),
			zap.String("policy", st.Policy.Name))
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventSLABreached,
		TicketID:  st.TicketID,
		Actor:     actor,
		Timestamp: at,
		Payload: events.SLABreachedPayload{
			Targets:       targets,
			Policy:        st.Policy.Name,
			ElapsedActive: st.AccumulatedActive,
		},
	})
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("event dispatch failed",
			zap.String("type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
