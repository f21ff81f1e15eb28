package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Commit(context.Background(), repository.Mutation{
		TicketID:  "t-1",
		At:        t0,
		NewTicket: &domain.Ticket{ID: "t-1", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityLow, Classification: "general"},
	}))
	return store
}

func TestHistoryOrdersByTimeThenInsertion(t *testing.T) {
	ctx := context.Background()
	log := NewLog(seededStore(t), 2)

	// Appended out of time order; two entries share a timestamp.
	offsets := []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour, time.Hour, 0}
	for i, off := range offsets {
		require.NoError(t, log.Append(ctx, &domain.TransitionRecord{
			TicketID:   "t-1",
			Kind:       domain.RecordKindTransition,
			Reason:     fmt.Sprint(i),
			OccurredAt: t0.Add(off),
		}))
	}

	recs, err := Collect(log.History(ctx, "t-1"))
	require.NoError(t, err)
	var reasons []string
	for _, r := range recs {
		reasons = append(reasons, r.Reason)
	}
	assert.Equal(t, []string{"4", "1", "3", "2", "0"}, reasons)
}

func TestHistoryIsRestartable(t *testing.T) {
	ctx := context.Background()
	log := NewLog(seededStore(t), 3)
	for i := 0; i < 7; i++ {
		require.NoError(t, log.Append(ctx, &domain.TransitionRecord{TicketID: "t-1", Kind: domain.RecordKindTransition, OccurredAt: t0.Add(time.Duration(i) * time.Minute)}))
	}

	seq := log.History(ctx, "t-1")
	first, err := Collect(seq)
	require.NoError(t, err)
	second, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 7)
	assert.Equal(t, first, second)

	// Stopping early is fine.
	var n int
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestHistoryEmpty(t *testing.T) {
	recs, err := Collect(NewLog(repository.NewMemoryStore(), 0).History(context.Background(), "none"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type brokenStore struct {
	repository.Store
}

func (brokenStore) ListRecords(context.Context, string, repository.Cursor, int) ([]domain.TransitionRecord, error) {
	return nil, errors.New("disk on fire")
}

func (brokenStore) Commit(context.Context, repository.Mutation) error {
	return errors.New("disk on fire")
}

func TestStorageFailures(t *testing.T) {
	log := NewLog(brokenStore{}, 10)

	_, err := Collect(log.History(context.Background(), "t-1"))
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	err = log.Append(context.Background(), &domain.TransitionRecord{TicketID: "t-1", OccurredAt: t0})
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}
