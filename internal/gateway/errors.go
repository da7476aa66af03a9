package gateway

import (
	"errors"

	"github.com/entrybook/syncgw/internal/alarm"
	"github.com/entrybook/syncgw/internal/attachment"
	"github.com/entrybook/syncgw/internal/gateway/query"
	"github.com/entrybook/syncgw/internal/gateway/router"
	"github.com/entrybook/syncgw/internal/recurrence"
)

// Errors returned by gateway operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, gateway.ErrUnauthorizedCaller) {
//	    // reject the client
//	}
var (
	// ErrUnknownResource is returned for a path that names no entity.
	ErrUnknownResource = router.ErrUnknownResource

	// ErrMissingAccountScope is returned when a request omits the account
	// name or type.
	ErrMissingAccountScope = query.ErrMissingAccountScope

	// ErrUnauthorizedCaller is returned when a request does not come from a
	// sync client, or when a client other than the owning application
	// addresses the local account.
	ErrUnauthorizedCaller = query.ErrUnauthorizedCaller

	// ErrInvalidRequest is returned for malformed payloads, inserts
	// addressing a single item and file opens on anything but a single
	// attachment.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a single-item read or open matches no
	// row, or the row has no backing file.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecurrenceRule fails a write carrying an unparsable rule.
	ErrInvalidRecurrenceRule = recurrence.ErrInvalidRecurrenceRule

	// ErrConstraintViolation is logged when an inserted row violates a
	// store constraint. The row is skipped; it is never returned to the
	// caller.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrMalformedDuration is logged for alarms whose relative trigger
	// cannot be parsed.
	ErrMalformedDuration = alarm.ErrMalformedDuration

	// ErrIOFailure is logged when a backing file cannot be written.
	ErrIOFailure = attachment.ErrIOFailure
)

// IsFatal reports whether err fails the request it was raised for.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsRecovered(err)
}

// IsRecovered reports whether err is one of the kinds the gateway recovers
// from locally. Such errors are logged and never fail a request.
func IsRecovered(err error) bool {
	return errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrMalformedDuration) ||
		errors.Is(err, ErrIOFailure)
}
