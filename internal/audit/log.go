// Package audit exposes the append-only transition and SLA event trail.
package audit

import (
	"context"
	"iter"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// DefaultPageSize bounds each storage read made while iterating history.
const DefaultPageSize = 100

// Log reads and appends audit records.
type Log struct {
	store    repository.Store
	pageSize int
}

// NewLog returns a log over store. A non-positive pageSize uses
// DefaultPageSize.
func NewLog(store repository.Store, pageSize int) *Log {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Log{store: store, pageSize: pageSize}
}

// Append stores a standalone record for collaborators outside the engine and
// tracker, which write their records inside their own mutations. The only
// failure is StorageUnavailable.
func (l *Log) Append(ctx context.Context, rec *domain.TransitionRecord) error {
	err := l.store.Commit(ctx, repository.Mutation{
		TicketID: rec.TicketID,
		At:       rec.OccurredAt,
		Records:  []*domain.TransitionRecord{rec},
	})
	if err != nil {
		return apperrors.NewStorageUnavailable(err, map[string]any{"ticket_id": rec.TicketID})
	}
	return nil
}

// History yields the ticket's records ordered by OccurredAt, ties in
// insertion order. Nothing is read until iteration starts and each range
// over the sequence starts again from the beginning. A read failure is
// yielded once as StorageUnavailable and ends the sequence.
func (l *Log) History(ctx context.Context, ticketID string) iter.Seq2[domain.TransitionRecord, error] {
	return func(yield func(domain.TransitionRecord, error) bool) {
		var cursor repository.Cursor
		for {
			page, err := l.store.ListRecords(ctx, ticketID, cursor, l.pageSize)
			if err != nil {
				yield(domain.TransitionRecord{}, apperrors.NewStorageUnavailable(err, map[string]any{"ticket_id": ticketID}))
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = repository.Cursor{OccurredAt: last.OccurredAt, Seq: last.Seq}
		}
	}
}

// Collect drains a history sequence.
func Collect(seq iter.Seq2[domain.TransitionRecord, error]) ([]domain.TransitionRecord, error) {
	var out []domain.TransitionRecord
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
