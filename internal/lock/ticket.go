package lock

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketKey namespaces a ticket id for a shared Locker.
func TicketKey(ticketID string) string {
	return "ticket:" + ticketID
}

// AcquireTicket enters a ticket's exclusivity scope. It waits until ctx is
// done or timeout elapses (timeout <= 0 means ctx alone bounds the wait) and
// reports TicketBusy if the scope was never entered.
func AcquireTicket(ctx context.Context, l Locker, ticketID string, timeout time.Duration) (func(), error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	release, err := l.Acquire(ctx, TicketKey(ticketID))
	if err == nil {
		return release, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, apperrors.NewTicketBusy(ticketID, err)
	}
	return nil, apperrors.NewStorageUnavailable(err, map[string]any{"ticket_id": ticketID})
}
