package repository

import (
    "context"
    "time"

    "github.com/iliyamo/gate-redemption/internal/model"
)

// LockedTicket is the view of one ticket handed to the callback of
// WithTicketLock.  Mutations are only visible to other callers once the
// callback returns nil and the transaction commits; a non-nil return
// discards all of them.
type LockedTicket interface {
    // Ticket returns the ticket as read under the exclusive lock.
    Ticket() model.Ticket
    // MarkRedeemed records an admission at `at`.  An empty occasion
    // updates the cooldown timestamp only.
    MarkRedeemed(ctx context.Context, occasion string, at time.Time) error
    // ClearRedeemed returns the ticket to "never redeemed" for the given
    // window.
    ClearRedeemed(ctx context.Context, occasion string) error
    // AppendOverride writes an audit row in the same transaction.
    AppendOverride(ctx context.Context, e model.OverrideLogEntry) error
}

// TicketReader is the lock-free read side used by lookups.
type TicketReader interface {
    GetByID(ctx context.Context, id string) (*model.Ticket, error)
    GetByCode(ctx context.Context, code string) (*model.Ticket, error)
    Search(ctx context.Context, query string, limit int) ([]model.Ticket, error)
}

// TicketLocker provides the per-ticket exclusive critical section.  fn
// runs while the ticket row is held exclusively; concurrent callers on the
// same id block until it finishes, callers on other ids never wait.
// Returns ErrTicketNotFound if the row does not exist.
type TicketLocker interface {
    WithTicketLock(ctx context.Context, id string, fn func(LockedTicket) error) error
}

// AuditReader lists override log entries for a ticket, newest first.
type AuditReader interface {
    ListOverrides(ctx context.Context, ticketID string) ([]model.OverrideLogEntry, error)
}

// TicketStore is everything the service needs from persistence.
type TicketStore interface {
    TicketReader
    TicketLocker
    AuditReader
    // Create inserts a freshly issued ticket.  Returns ErrDuplicateTicket
    // when the id or code is already used.
    Create(ctx context.Context, t *model.Ticket) error
}
