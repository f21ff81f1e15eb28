package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/lock"
	"github.com/spec-kit/ticket-lifecycle/internal/policy"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

type fixture struct {
	store   *repository.MemoryStore
	locks   *lock.Keyed
	tracker *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	locks := lock.NewKeyed()
	return &fixture{
		store:   store,
		locks:   locks,
		tracker: NewTracker(store, locks, policy.Default(), nil, 50*time.Millisecond),
	}
}

func (f *fixture) seed(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Commit(context.Background(), repository.Mutation{
		TicketID: id,
		At:       monday,
		NewTicket: &domain.Ticket{
			ID: id, Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityHigh,
			Classification: "general", CreatedAt: monday, UpdatedAt: monday,
		},
	}))
	_, err := f.tracker.StartTracking(context.Background(), id, highPolicy, monday)
	require.NoError(t, err)
}

func (f *fixture) records(t *testing.T, id string) []domain.TransitionRecord {
	t.Helper()
	out, err := f.store.ListRecords(context.Background(), id, repository.Cursor{}, 0)
	require.NoError(t, err)
	return out
}

func TestStartTrackingTwice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "t-1")

	_, err := f.tracker.StartTracking(context.Background(), "t-1", highPolicy, monday)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyTracked)

	_, err = f.tracker.StartTracking(context.Background(), "missing", highPolicy, monday)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	bad := highPolicy
	bad.Calendar = "lunar"
	_, err = f.tracker.StartTracking(context.Background(), "t-1", bad, monday)
	assert.ErrorIs(t, err, apperrors.ErrPolicyNotFound)
}

func TestTrackerPauseResume(t *testing.T) {
	ctx := domain.ContextWithActor(context.Background(), domain.Actor{ID: "agent-7", Role: domain.RoleAgent})
	f := newFixture(t)
	f.seed(t, "t-1")

	st, err := f.tracker.Pause(ctx, "t-1", "customer asked", monday.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, int64(2), st.Version)

	// Pausing again writes nothing.
	_, err = f.tracker.Pause(ctx, "t-1", "again", monday.Add(3*time.Hour))
	require.NoError(t, err)

	_, err = f.tracker.Resume(ctx, "t-1", monday.Add(26*time.Hour))
	require.NoError(t, err)

	elapsed, err := f.tracker.ElapsedActive(ctx, "t-1", monday.Add(32*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, elapsed)

	recs := f.records(t, "t-1")
	require.Len(t, recs, 4)
	assert.Equal(t, domain.RecordKindSLAStarted, recs[0].Kind)
	assert.Equal(t, domain.RecordKindSLAPaused, recs[1].Kind)
	assert.Equal(t, "customer asked", recs[1].Reason)
	assert.Equal(t, "agent-7", recs[1].ActorID)
	// The first-response target was already missed when the pause happened.
	assert.Equal(t, domain.RecordKindSLABreached, recs[2].Kind)
	assert.Equal(t, domain.RecordKindSLAResumed, recs[3].Kind)
}

func TestTrackerCheckBreachPersistsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "t-1")

	status, newly, err := f.tracker.CheckBreach(ctx, "t-1", monday.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, status.Any())
	assert.Empty(t, newly)

	status, newly, err = f.tracker.CheckBreach(ctx, "t-1", monday.Add(8*time.Hour))
	require.NoError(t, err)
	assert.True(t, status.FirstResponseBreached)
	assert.True(t, status.ResolutionBreached)
	assert.Equal(t, []string{TargetFirstResponse, TargetResolution}, newly)

	_, newly, err = f.tracker.CheckBreach(ctx, "t-1", monday.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, newly)

	var breaches int
	for _, r := range f.records(t, "t-1") {
		if r.Kind == domain.RecordKindSLABreached {
			breaches++
		}
	}
	assert.Equal(t, 1, breaches)

	st, err := f.store.GetSLAState(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, st.ResolutionBreached)
}

func TestTrackerStopRefusesPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "t-1")

	st, err := f.tracker.StopTracking(ctx, "t-1", monday.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, st.Stopped)

	_, err = f.tracker.Pause(ctx, "t-1", "x", monday.Add(2*time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrTrackingClosed)
	_, err = f.tracker.Resume(ctx, "t-1", monday.Add(2*time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrTrackingClosed)

	tracked, err := f.store.ListTrackedTicketIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestTrackerMarkFirstResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "t-1")

	st, err := f.tracker.MarkFirstResponse(ctx, "t-1", monday.Add(45*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, st.FirstRespondedAt)
	assert.Equal(t, 45*time.Minute, st.FirstResponseElapsed)

	status, _, err := f.tracker.CheckBreach(ctx, "t-1", monday.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, status.FirstResponseBreached)
}

func TestTrackerReclassify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "t-1")

	st, err := f.tracker.Reclassify(ctx, "t-1", "billing", domain.TicketPriorityUrgent, monday.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "standard-urgent", st.Policy.Name)
	assert.Equal(t, time.Hour, st.AccumulatedActive)
	assert.True(t, st.FirstResponseBreached, "urgent first response target is 30m")

	ticket, err := f.store.GetTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "billing", ticket.Classification)
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)

	_, err = f.tracker.Reclassify(ctx, "t-1", "billing", "critical", monday.Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrPolicyNotFound)
}

func TestTrackerBusyTicket(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "t-1")

	release, err := f.locks.Acquire(context.Background(), lock.TicketKey("t-1"))
	require.NoError(t, err)
	defer release()

	_, err = f.tracker.Pause(context.Background(), "t-1", "x", monday.Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrTicketBusy)

	st, err := f.store.GetSLAState(context.Background(), "t-1")
	require.NoError(t, err)
	assert.False(t, st.Paused)
}

func TestTrackerConcurrentPauses(t *testing.T) {
	f := newFixture(t)
	f.tracker.lockTimeout = time.Second
	f.seed(t, "t-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tracker.Pause(context.Background(), "t-1", "x", monday.Add(time.Hour))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var pauses int
	for _, r := range f.records(t, "t-1") {
		if r.Kind == domain.RecordKindSLAPaused {
			pauses++
		}
	}
	assert.Equal(t, 1, pauses)
}

func TestTrackerNotifiesObservers(t *testing.T) {
	f := newFixture(t)
	var seen []domain.RecordKind
	f.tracker.OnCommit(func(_ context.Context, st *domain.SLAState, records []domain.TransitionRecord) {
		assert.Equal(t, "t-1", st.TicketID)
		for _, r := range records {
			assert.Positive(t, r.Seq)
			seen = append(seen, r.Kind)
		}
	})
	f.seed(t, "t-1")

	_, err := f.tracker.Pause(context.Background(), "t-1", "x", monday.Add(3*time.Hour))
	require.NoError(t, err)
	_, err = f.tracker.Pause(context.Background(), "t-1", "x", monday.Add(4*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []domain.RecordKind{
		domain.RecordKindSLAStarted,
		domain.RecordKindSLAPaused,
		domain.RecordKindSLABreached,
	}, seen)
}
