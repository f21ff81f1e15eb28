package sla

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/calendar"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/lock"
	"github.com/spec-kit/ticket-lifecycle/internal/policy"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// Tracker is the stateful SLA tracker. Mutations run inside the ticket's
// exclusivity scope and commit state plus audit records together. Reads use
// a single stored snapshot and take no lock.
type Tracker struct {
	store       repository.Store
	locks       lock.Locker
	policies    policy.Resolver
	logger      *zap.Logger
	lockTimeout time.Duration
	observers   []CommitObserver
}

// CommitObserver is told about every committed tracker mutation, after the
// commit and outside the ticket lock.
type CommitObserver func(ctx context.Context, st *domain.SLAState, records []domain.TransitionRecord)

// NewTracker wires a tracker.
func NewTracker(store repository.Store, locks lock.Locker, policies policy.Resolver, logger *zap.Logger, lockTimeout time.Duration) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:       store,
		locks:       locks,
		policies:    policies,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

// OnCommit registers an observer. Register observers before the tracker is
// shared between goroutines.
func (t *Tracker) OnCommit(fn CommitObserver) {
	t.observers = append(t.observers, fn)
}

func (t *Tracker) notify(ctx context.Context, st *domain.SLAState, records []*domain.TransitionRecord) {
	if len(t.observers) == 0 || len(records) == 0 {
		return
	}
	committed := make([]domain.TransitionRecord, len(records))
	for i, r := range records {
		committed[i] = *r
	}
	for _, fn := range t.observers {
		fn(ctx, st.Clone(), committed)
	}
}

// StartTracking creates the SLA state for an existing ticket. Tickets made by
// workflow.Engine.CreateTicket are tracked in their creating mutation; this
// entry point serves collaborators that insert tickets themselves.
func (t *Tracker) StartTracking(ctx context.Context, ticketID string, p domain.Policy, now time.Time) (*domain.SLAState, error) {
	if _, err := t.policies.Calendar(p.Calendar); err != nil {
		return nil, err
	}
	release, err := lock.AcquireTicket(ctx, t.locks, ticketID, t.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	st := NewState(ticketID, p, now)
	rec := NewRecord(ctx, ticketID, domain.RecordKindSLAStarted, now, map[string]any{"policy": p.Name})
	if err := t.store.Commit(ctx, repository.Mutation{
		TicketID:  ticketID,
		At:        now,
		SLA:       st,
		CreateSLA: true,
		Records:   []*domain.TransitionRecord{rec},
	}); err != nil {
		return nil, repository.TranslateError(err, ticketID, nil)
	}
	release()
	t.notify(ctx, st, []*domain.TransitionRecord{rec})
	return st.Clone(), nil
}

// Pause stops the clock. Pausing a paused ticket changes nothing.
func (t *Tracker) Pause(ctx context.Context, ticketID, reason string, now time.Time) (*domain.SLAState, error) {
	return t.mutate(ctx, ticketID, now, func(st *domain.SLAState, cal *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error) {
		changed, err := Pause(st, cal, reason, now)
		if err != nil || !changed {
			return nil, err
		}
		rec := NewRecord(ctx, ticketID, domain.RecordKindSLAPaused, now, map[string]any{"reason": reason})
		rec.Reason = reason
		return []*domain.TransitionRecord{rec}, nil
	})
}

// Resume restarts the clock. Resuming a running ticket changes nothing.
func (t *Tracker) Resume(ctx context.Context, ticketID string, now time.Time) (*domain.SLAState, error) {
	return t.mutate(ctx, ticketID, now, func(st *domain.SLAState, _ *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error) {
		changed, err := Resume(st, now)
		if err != nil || !changed {
			return nil, err
		}
		return []*domain.TransitionRecord{NewRecord(ctx, ticketID, domain.RecordKindSLAResumed, now, nil)}, nil
	})
}

// StopTracking freezes accounting for a closed ticket. Status-driven closes
// stop the clock through the STOP_SLA rule effect; this is for callers that
// close tickets outside the rule table.
func (t *Tracker) StopTracking(ctx context.Context, ticketID string, now time.Time) (*domain.SLAState, error) {
	return t.mutate(ctx, ticketID, now, func(st *domain.SLAState, cal *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error) {
		if !Stop(st, cal, now) {
			return nil, nil
		}
		return []*domain.TransitionRecord{NewRecord(ctx, ticketID, domain.RecordKindSLAStopped, now, nil)}, nil
	})
}

// MarkFirstResponse freezes the first-response measurement at now.
func (t *Tracker) MarkFirstResponse(ctx context.Context, ticketID string, now time.Time) (*domain.SLAState, error) {
	return t.mutate(ctx, ticketID, now, func(st *domain.SLAState, cal *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error) {
		if !MarkFirstResponse(st, cal, now) {
			return nil, nil
		}
		return []*domain.TransitionRecord{NewRecord(ctx, ticketID, domain.RecordKindSLAFirstResponse, now,
			map[string]any{"elapsed": st.FirstResponseElapsed.String()})}, nil
	})
}

// Reclassify rebinds the ticket to the policy for a new classification and
// priority. Time already accrued and breach flags carry over.
func (t *Tracker) Reclassify(ctx context.Context, ticketID, classification string, priority domain.TicketPriority, now time.Time) (*domain.SLAState, error) {
	p, err := t.policies.Resolve(classification, priority)
	if err != nil {
		return nil, err
	}
	if _, err := t.policies.Calendar(p.Calendar); err != nil {
		return nil, err
	}
	var rebind *repository.Classification
	st, err := t.mutate(ctx, ticketID, now, func(st *domain.SLAState, cal *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error) {
		from := st.Policy.Name
		if !Reclassify(st, cal, p, now) {
			return nil, nil
		}
		rebind = &repository.Classification{Classification: classification, Priority: priority}
		return []*domain.TransitionRecord{NewRecord(ctx, ticketID, domain.RecordKindSLAReclassified, now, map[string]any{
			"from_policy":    from,
			"to_policy":      p.Name,
			"classification": classification,
			"priority":       string(priority),
		})}, nil
	}, func(m *repository.Mutation) { m.Classification = rebind })
	return st, err
}

// Snapshot returns one consistent copy of the state and its calendar.
func (t *Tracker) Snapshot(ctx context.Context, ticketID string) (*domain.SLAState, *calendar.BusinessCalendar, error) {
	st, err := t.store.GetSLAState(ctx, ticketID)
	if err != nil {
		return nil, nil, repository.TranslateError(err, ticketID, nil)
	}
	cal, err := t.policies.Calendar(st.Policy.Calendar)
	if err != nil {
		return nil, nil, err
	}
	return st, cal, nil
}

// Calendar returns the business calendar a policy refers to.
func (t *Tracker) Calendar(name string) (*calendar.BusinessCalendar, error) {
	return t.policies.Calendar(name)
}

// ElapsedActive returns active time as of now.
func (t *Tracker) ElapsedActive(ctx context.Context, ticketID string, now time.Time) (time.Duration, error) {
	st, cal, err := t.Snapshot(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	return Elapsed(st, cal, now), nil
}

// CheckBreach evaluates both targets. Newly missed targets are persisted
// with an sla_breached record. The returned newly breached targets are empty
// when nothing changed.
func (t *Tracker) CheckBreach(ctx context.Context, ticketID string, now time.Time) (domain.BreachStatus, []string, error) {
	st, cal, err := t.Snapshot(ctx, ticketID)
	if err != nil {
		return domain.BreachStatus{}, nil, err
	}
	eval := Evaluate(st, cal, now)
	if eval.FirstResponseBreached == st.FirstResponseBreached && eval.ResolutionBreached == st.ResolutionBreached {
		return eval, nil, nil
	}

	var newly []string
	updated, err := t.mutate(ctx, ticketID, now, func(st *domain.SLAState, cal *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error) {
		newly = MarkBreaches(st, cal, now)
		if len(newly) == 0 {
			return nil, nil
		}
		return []*domain.TransitionRecord{BreachRecord(ctx, ticketID, newly, now)}, nil
	})
	if err != nil {
		return domain.BreachStatus{}, nil, err
	}
	for _, target := range newly {
		t.logger.Warn("sla breached", zap.String("ticket_id", ticketID), zap.String("target", target))
	}
	return Evaluate(updated, cal, now), newly, nil
}

type mutation func(st *domain.SLAState, cal *calendar.BusinessCalendar) ([]*domain.TransitionRecord, error)

// mutate applies fn to a copy of the stored state under the ticket lock and
// commits the result with fn's records. When fn returns no records nothing
// is written and the current state is returned.
func (t *Tracker) mutate(ctx context.Context, ticketID string, now time.Time, fn mutation, extra ...func(*repository.Mutation)) (*domain.SLAState, error) {
	st, records, err := t.commitLocked(ctx, ticketID, now, fn, extra)
	if err != nil {
		return nil, err
	}
	t.notify(ctx, st, records)
	return st, nil
}

func (t *Tracker) commitLocked(ctx context.Context, ticketID string, now time.Time, fn mutation, extra []func(*repository.Mutation)) (*domain.SLAState, []*domain.TransitionRecord, error) {
	release, err := lock.AcquireTicket(ctx, t.locks, ticketID, t.lockTimeout)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	cur, cal, err := t.Snapshot(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	next := cur.Clone()
	records, err := fn(next, cal)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return cur, nil, nil
	}
	if records[0].Kind != domain.RecordKindSLABreached {
		if newly := MarkBreaches(next, cal, now); len(newly) > 0 {
			records = append(records, BreachRecord(ctx, ticketID, newly, now))
		}
	}

	m := repository.Mutation{TicketID: ticketID, At: now, SLA: next, Records: records}
	for _, opt := range extra {
		opt(&m)
	}
	if err := t.store.Commit(ctx, m); err != nil {
		err = repository.TranslateError(err, ticketID, nil)
		t.logger.Error("sla commit failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil, nil, err
	}
	return next.Clone(), records, nil
}

// NewRecord builds an SLA audit record attributed to the actor in ctx.
func NewRecord(ctx context.Context, ticketID string, kind domain.RecordKind, now time.Time, details map[string]any) *domain.TransitionRecord {
	rec := &domain.TransitionRecord{
		TicketID:   ticketID,
		Kind:       kind,
		Details:    details,
		OccurredAt: now,
	}
	if actor, ok := domain.ActorFromContext(ctx); ok {
		rec.ActorID = actor.ID
		rec.ActorRole = actor.Role
	}
	return rec
}

// BreachRecord builds the sla_breached record for newly missed targets.
func BreachRecord(ctx context.Context, ticketID string, targets []string, now time.Time) *domain.TransitionRecord {
	return NewRecord(ctx, ticketID, domain.RecordKindSLABreached, now, map[string]any{"targets": targets})
}
