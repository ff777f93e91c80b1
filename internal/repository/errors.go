// Package repository defines error types that are reused across the
// ticket and override-log stores.  These sentinel values allow higher
// layers such as the redemption engine and the HTTP handlers to tell a
// missing ticket apart from an unavailable database.  Store failures must
// always be treated as "do not admit".
package repository

import "errors"

// ErrTicketNotFound is returned when no ticket row matches the requested
// identifier or code.  Handlers should translate this into HTTP 404 and
// the engine into REJECTED_NOT_FOUND.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrDuplicateTicket is returned by Create when the identifier or the
// numeric code is already taken.
var ErrDuplicateTicket = errors.New("duplicate ticket id or code")

// ErrStoreUnavailable wraps transient failures: lock wait timeouts,
// deadlocks and lost connections.  The whole operation may be retried
// safely because nothing was committed.
var ErrStoreUnavailable = errors.New("ticket store unavailable")
