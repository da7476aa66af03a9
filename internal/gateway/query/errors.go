package query

import "errors"

var (
	// ErrMissingAccountScope is returned when the account name or type is
	// empty.
	ErrMissingAccountScope = errors.New("missing account scope")

	// ErrUnauthorizedCaller is returned when a caller other than the owning
	// application addresses the reserved local account, or when a write
	// would move a row out of the caller's account.
	ErrUnauthorizedCaller = errors.New("unauthorized caller")

	// ErrInvalidProjection is returned when a projection names a column the
	// table does not declare.
	ErrInvalidProjection = errors.New("invalid projection")

	// ErrMissingOwner is returned when an insert omits the owner column
	// (collection_id for entries, entry_id for child rows).
	ErrMissingOwner = errors.New("missing owner reference")
)

var (
	// ErrInvalidSelection is returned for a selection that is not a single
	// balanced expression: unbalanced parentheses, statement separators or
	// comments outside string literals.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrInvalidSortOrder is returned for a sort order that is not a comma
	// list of known columns, each optionally followed by ASC or DESC.
	ErrInvalidSortOrder = errors.New("invalid sort order")
)
