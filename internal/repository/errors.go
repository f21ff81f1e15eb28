package repository

import (
	"errors"

	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TranslateError maps store errors onto the domain taxonomy. Anything the
// store does not recognise is a StorageUnavailable failure.
func TranslateError(err error, ticketID string, details map[string]any) error {
	if err == nil {
		return nil
	}
	if details == nil {
		details = map[string]any{}
	}
	details["ticket_id"] = ticketID
	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.NewNotFound("ticket", details)
	case errors.Is(err, ErrConflict):
		return apperrors.NewStaleTransition(details)
	case errors.Is(err, ErrDuplicate):
		return apperrors.NewAlreadyTracked(ticketID)
	}
	return apperrors.MapError(err, details)
}
