package service

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/audit"
	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lock"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/policy"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/rules"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
	"github.com/spec-kit/ticket-lifecycle/internal/workflow"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

var (
	monday = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	agent  = domain.Actor{ID: "agent-7", Role: domain.RoleAgent}
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type suite struct {
	clock   *clock.FakeClock
	store   repository.Store
	metrics *observability.Metrics
	events  *recorder
	svc     *LifecycleService
}

func newSuite(t *testing.T, store repository.Store) *suite {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryStore()
	}
	s := &suite{
		clock:   clock.Fake(monday),
		store:   store,
		metrics: observability.NewMetrics(),
		events:  &recorder{},
	}
	locks := lock.NewKeyed()
	catalog := policy.Default()
	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, s.events.handle)

	s.svc = NewLifecycleService(LifecycleDependencies{
		Engine: workflow.NewEngine(workflow.Config{
			Store:       store,
			Locks:       locks,
			Rules:       rules.Default(),
			Policies:    catalog,
			Clock:       s.clock,
			LockTimeout: time.Second,
		}),
		Tracker:    sla.NewTracker(store, locks, catalog, nil, time.Second),
		Audit:      audit.NewLog(store, 2),
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    s.metrics,
		Clock:      s.clock,
	})
	return s
}

func (s *suite) create(t *testing.T, priority domain.TicketPriority) string {
	t.Helper()
	ticket, _, err := s.svc.CreateTicket(context.Background(), workflow.NewTicket{Classification: "billing", Priority: priority, Actor: agent})
	require.NoError(t, err)
	return ticket.ID
}

func (s *suite) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCreateTicketPublishesEvent(t *testing.T) {
	s := newSuite(t, nil)

	ticket, view, err := s.svc.CreateTicket(context.Background(), workflow.NewTicket{Classification: "billing", Priority: domain.TicketPriorityHigh, Actor: agent})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "standard-high", view.Policy.Name)
	assert.Zero(t, view.ElapsedActive)
	assert.False(t, view.IsPaused)

	require.Equal(t, []events.EventType{events.EventTicketCreated}, s.events.types())
	ev := s.events.last()
	assert.Equal(t, ticket.ID, ev.TicketID)
	assert.Equal(t, agent.ID, ev.Actor.ID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, events.TicketCreatedPayload{Classification: "billing", Priority: domain.TicketPriorityHigh, Policy: "standard-high"}, ev.Payload)

	_, _, err = s.svc.CreateTicket(context.Background(), workflow.NewTicket{Classification: " ", Priority: domain.TicketPriorityHigh})
	assert.ErrorIs(t, err, apperrors.NewValidationError("", nil))
	assert.Len(t, s.events.types(), 1)
}

func TestExecuteTransitionPublishesEffects(t *testing.T) {
	s := newSuite(t, nil)
	id := s.create(t, domain.TicketPriorityHigh)
	s.events.reset()

	s.clock.Advance(time.Hour)
	res, err := s.svc.ExecuteTransition(context.Background(), workflow.TransitionRequest{
		TicketID: id, From: domain.TicketStatusOpen, To: domain.TicketStatusPending, Actor: agent,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, res.Status)

	assert.Equal(t, []events.EventType{events.EventTicketStatusChanged, events.EventSLAPaused}, s.events.types())
	assert.Equal(t, events.SLAPausedPayload{Reason: "status pending", ElapsedActive: time.Hour}, s.events.last().Payload)
	assert.Contains(t, s.scrape(t), `lifecycle_transitions_total{from="open",to="pending"} 1`)

	_, err = s.svc.ExecuteTransition(context.Background(), workflow.TransitionRequest{
		TicketID: id, From: domain.TicketStatusOpen, To: domain.TicketStatusResolved, Actor: agent,
	})
	require.ErrorIs(t, err, apperrors.ErrStaleTransition)
	assert.Contains(t, s.scrape(t), `lifecycle_transition_failures_total{code="STALE_TRANSITION"} 1`)
	assert.Len(t, s.events.types(), 2)
}

func TestTransitionBreachIsPublished(t *testing.T) {
	s := newSuite(t, nil)
	id := s.create(t, domain.TicketPriorityUrgent)
	s.events.reset()

	s.clock.Advance(45 * time.Minute)
	res, err := s.svc.ExecuteTransition(context.Background(), workflow.TransitionRequest{
		TicketID: id, From: domain.TicketStatusOpen, To: domain.TicketStatusPending, Actor: agent,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{sla.TargetFirstResponse}, res.Breached)
	assert.Equal(t, []events.EventType{events.EventTicketStatusChanged, events.EventSLAPaused, events.EventSLABreached}, s.events.types())
	assert.Contains(t, s.scrape(t), `lifecycle_sla_breaches_total{target="first_response"} 1`)
}

func TestGetSLAIsReadOnly(t *testing.T) {
	s := newSuite(t, nil)
	id := s.create(t, domain.TicketPriorityHigh)
	s.events.reset()

	later := monday.Add(3 * time.Hour)
	view, err := s.svc.GetSLA(context.Background(), id, later)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, view.ElapsedActive)
	assert.True(t, view.FirstResponseBreached)
	assert.False(t, view.ResolutionBreached)
	assert.Equal(t, later, view.AsOf)

	st, err := s.store.GetSLAState(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, st.FirstResponseBreached)
	assert.Empty(t, s.events.types())

	_, err = s.svc.GetSLA(context.Background(), "missing", later)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestManualPauseAndResume(t *testing.T) {
	s := newSuite(t, nil)
	id := s.create(t, domain.TicketPriorityHigh)
	s.events.reset()
	ctx := context.Background()

	_, err := s.svc.PauseSLA(ctx, agent, id, "  ", monday.Add(time.Hour))
	require.ErrorIs(t, err, apperrors.ErrReasonRequired)

	view, err := s.svc.PauseSLA(ctx, agent, id, "customer travelling", monday.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, view.IsPaused)
	assert.Equal(t, "customer travelling", view.PauseReason)

	view, err = s.svc.ResumeSLA(ctx, agent, id, monday.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, view.IsPaused)
	assert.Equal(t, time.Hour, view.ElapsedActive)

	assert.Equal(t, []events.EventType{events.EventSLAPaused, events.EventSLAResumed}, s.events.types())
	assert.Equal(t, agent.ID, s.events.last().Actor.ID)

	var kinds []domain.RecordKind
	var actors []string
	for rec, err := range s.svc.History(ctx, id) {
		require.NoError(t, err)
		kinds = append(kinds, rec.Kind)
		actors = append(actors, rec.ActorID)
	}
	assert.Equal(t, []domain.RecordKind{domain.RecordKindSLAStarted, domain.RecordKindSLAPaused, domain.RecordKindSLAResumed}, kinds)
	assert.Equal(t, []string{agent.ID, agent.ID, agent.ID}, actors)
}

func TestFirstResponseAndReclassify(t *testing.T) {
	s := newSuite(t, nil)
	id := s.create(t, domain.TicketPriorityHigh)
	s.events.reset()
	ctx := context.Background()

	view, err := s.svc.MarkFirstResponse(ctx, agent, id, monday.Add(20*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, view.FirstRespondedAt)
	assert.Equal(t, 20*time.Minute, view.FirstResponseElapsed)

	_, err = s.svc.Reclassify(ctx, agent, id, "billing", "critical", monday.Add(time.Hour))
	require.ErrorIs(t, err, apperrors.NewValidationError("", nil))

	view, err = s.svc.Reclassify(ctx, agent, id, "billing", domain.TicketPriorityUrgent, monday.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "standard-urgent", view.Policy.Name)

	ticket, err := s.svc.Ticket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)

	assert.Equal(t, []events.EventType{events.EventSLAFirstResponse, events.EventSLAReclassified}, s.events.types())
	assert.Equal(t, events.SLAReclassifiedPayload{Classification: "billing", Priority: domain.TicketPriorityUrgent, Policy: "standard-urgent"}, s.events.last().Payload)
}

type ghostStore struct {
	*repository.MemoryStore
}

func (g ghostStore) ListTrackedTicketIDs(ctx context.Context) ([]string, error) {
	ids, err := g.MemoryStore.ListTrackedTicketIDs(ctx)
	return append(ids, "ghost"), err
}

func TestPollBreaches(t *testing.T) {
	s := newSuite(t, ghostStore{repository.NewMemoryStore()})
	high := s.create(t, domain.TicketPriorityHigh)
	s.create(t, domain.TicketPriorityMedium)
	s.events.reset()

	now := monday.Add(3 * time.Hour)
	reports, err := s.svc.PollBreaches(context.Background(), now)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorContains(t, err, "ticket ghost")
	assert.Equal(t, []BreachReport{{TicketID: high, Targets: []string{sla.TargetFirstResponse}}}, reports)
	assert.Equal(t, []events.EventType{events.EventSLABreached}, s.events.types())
	assert.Contains(t, s.scrape(t), `lifecycle_sla_breaches_total{target="first_response"} 1`)

	reports, _ = s.svc.PollBreaches(context.Background(), now.Add(time.Minute))
	assert.Empty(t, reports)
	assert.Len(t, s.events.types(), 1)
}

func TestRulesListsTable(t *testing.T) {
	s := newSuite(t, nil)
	assert.Equal(t, rules.Default().Rules(), s.svc.Rules())
	assert.Equal(t, monday, s.svc.Now())
}
