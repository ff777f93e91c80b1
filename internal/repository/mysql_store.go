package repository

import (
    "context"
    "database/sql"
    "database/sql/driver"
    "errors"
    "fmt"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/gate-redemption/internal/model"
)

// MySQL server error numbers that mean "try the whole thing again".
const (
    errLockWaitTimeout = 1205
    errDeadlock        = 1213
)

// classify wraps transient database failures in ErrStoreUnavailable and
// passes everything else through unchanged.
func classify(err error) error {
    if err == nil {
        return nil
    }
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        if me.Number == errLockWaitTimeout || me.Number == errDeadlock {
            return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
        }
        return err
    }
    if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
        errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
        return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
    }
    return err
}

// MySQLStore implements TicketStore on top of TicketRepo and
// OverrideLogRepo.  Exclusivity comes from InnoDB row locks taken with
// SELECT ... FOR UPDATE.
type MySQLStore struct {
    db        *sql.DB
    Tickets   *TicketRepo
    Overrides *OverrideLogRepo
}

// NewMySQLStore wires both repositories to db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
    return &MySQLStore{db: db, Tickets: NewTicketRepo(db), Overrides: NewOverrideLogRepo(db)}
}

func (s *MySQLStore) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
    return s.Tickets.GetByID(ctx, id)
}

func (s *MySQLStore) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
    return s.Tickets.GetByCode(ctx, code)
}

func (s *MySQLStore) Search(ctx context.Context, query string, limit int) ([]model.Ticket, error) {
    return s.Tickets.Search(ctx, query, limit)
}

func (s *MySQLStore) ListOverrides(ctx context.Context, ticketID string) ([]model.OverrideLogEntry, error) {
    return s.Overrides.ListByTicket(ctx, ticketID)
}

func (s *MySQLStore) Create(ctx context.Context, t *model.Ticket) error {
    return s.Tickets.Create(ctx, t)
}

// WithTicketLock opens a transaction, locks the ticket row and runs fn.
// The transaction commits only if fn returns nil; any error, including a
// failed commit, leaves the database untouched.
func (s *MySQLStore) WithTicketLock(ctx context.Context, id string, fn func(LockedTicket) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return classify(err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    t, err := s.Tickets.LockByIDTx(ctx, tx, id)
    if errors.Is(err, sql.ErrNoRows) {
        return ErrTicketNotFound
    }
    if err != nil {
        return classify(err)
    }
    if err := fn(&sqlLockedTicket{tx: tx, store: s, ticket: *t}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return classify(err)
    }
    committed = true
    return nil
}

type sqlLockedTicket struct {
    tx     *sql.Tx
    store  *MySQLStore
    ticket model.Ticket
}

func (l *sqlLockedTicket) Ticket() model.Ticket { return l.ticket.Clone() }

func (l *sqlLockedTicket) MarkRedeemed(ctx context.Context, occasion string, at time.Time) error {
    if err := l.store.Tickets.MarkRedeemedTx(ctx, l.tx, l.ticket.ID, occasion, at); err != nil {
        return classify(err)
    }
    at = at.UTC()
    l.ticket.LastRedeemedAt = &at
    if occasion != "" {
        if l.ticket.Redemptions == nil {
            l.ticket.Redemptions = make(map[string]time.Time)
        }
        l.ticket.Redemptions[occasion] = at
    }
    return nil
}

func (l *sqlLockedTicket) ClearRedeemed(ctx context.Context, occasion string) error {
    if err := l.store.Tickets.ClearRedeemedTx(ctx, l.tx, l.ticket.ID, occasion); err != nil {
        return classify(err)
    }
    if occasion == "" {
        l.ticket.LastRedeemedAt = nil
    } else {
        delete(l.ticket.Redemptions, occasion)
        l.ticket.LastRedeemedAt = latest(l.ticket.Redemptions)
    }
    return nil
}

func (l *sqlLockedTicket) AppendOverride(ctx context.Context, e model.OverrideLogEntry) error {
    return classify(l.store.Overrides.AppendTx(ctx, l.tx, e))
}

// latest returns the most recent time in m, or nil when m is empty.
func latest(m map[string]time.Time) *time.Time {
    var out *time.Time
    for _, at := range m {
        if out == nil || at.After(*out) {
            v := at
            out = &v
        }
    }
    return out
}

var _ TicketStore = (*MySQLStore)(nil)
