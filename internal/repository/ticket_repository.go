package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/gate-redemption/internal/model"
)

// TicketRepo provides data access to the tickets and ticket_occasions
// tables.  Methods suffixed with Tx run inside a caller-supplied
// transaction; the caller is responsible for committing or rolling back.
// All timestamps are stored and returned in UTC.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, code, holder_name, holder_contact, category, last_redeemed_at, invalidated_at, created_at`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
    var (
        t           model.Ticket
        category    string
        lastRedeem  sql.NullTime
        invalidated sql.NullTime
    )
    if err := row.Scan(&t.ID, &t.Code, &t.HolderName, &t.HolderContact, &category, &lastRedeem, &invalidated, &t.CreatedAt); err != nil {
        return nil, err
    }
    if c, ok := model.ParseCategory(category); ok {
        t.Category = c
    } else {
        t.Category = model.CategorySingle
    }
    if lastRedeem.Valid {
        at := lastRedeem.Time.UTC()
        t.LastRedeemedAt = &at
    }
    if invalidated.Valid {
        at := invalidated.Time.UTC()
        t.InvalidatedAt = &at
    }
    t.CreatedAt = t.CreatedAt.UTC()
    return &t, nil
}

// GetByID fetches a ticket and its occasion redemptions without locking.
// Returns ErrTicketNotFound when the id is unknown.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
    t, err := scanTicket(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrTicketNotFound
    }
    if err != nil {
        return nil, classify(err)
    }
    if err := r.attachRedemptions(ctx, r.db, []*model.Ticket{t}); err != nil {
        return nil, classify(err)
    }
    return t, nil
}

// GetByCode fetches a ticket by its exact numeric code.
func (r *TicketRepo) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code = ?`, code)
    t, err := scanTicket(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrTicketNotFound
    }
    if err != nil {
        return nil, classify(err)
    }
    if err := r.attachRedemptions(ctx, r.db, []*model.Ticket{t}); err != nil {
        return nil, classify(err)
    }
    return t, nil
}

// escapeLike neutralises LIKE wildcards in user input.  The default MySQL
// escape character is backslash.
func escapeLike(s string) string {
    return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search returns up to limit tickets whose holder name, contact or code
// contains query, case-insensitively.  An empty query yields no rows.
func (r *TicketRepo) Search(ctx context.Context, query string, limit int) ([]model.Ticket, error) {
    q := strings.ToLower(strings.TrimSpace(query))
    if q == "" || limit <= 0 {
        return []model.Ticket{}, nil
    }
    pattern := "%" + escapeLike(q) + "%"
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+ticketColumns+`
         FROM tickets
         WHERE LOWER(holder_name) LIKE ? OR LOWER(holder_contact) LIKE ? OR code LIKE ?
         ORDER BY holder_name, id
         LIMIT ?`,
        pattern, pattern, pattern, limit)
    if err != nil {
        return nil, classify(err)
    }
    defer rows.Close()
    found := make([]*model.Ticket, 0, limit)
    for rows.Next() {
        t, err := scanTicket(rows)
        if err != nil {
            return nil, classify(err)
        }
        found = append(found, t)
    }
    if err := rows.Err(); err != nil {
        return nil, classify(err)
    }
    if err := r.attachRedemptions(ctx, r.db, found); err != nil {
        return nil, classify(err)
    }
    out := make([]model.Ticket, 0, len(found))
    for _, t := range found {
        out = append(out, *t)
    }
    return out, nil
}

type queryer interface {
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// attachRedemptions loads ticket_occasions rows for all tickets in a
// single query.
func (r *TicketRepo) attachRedemptions(ctx context.Context, q queryer, tickets []*model.Ticket) error {
    if len(tickets) == 0 {
        return nil
    }
    index := make(map[string]*model.Ticket, len(tickets))
    ids := make([]any, 0, len(tickets))
    placeholders := make([]string, 0, len(tickets))
    for _, t := range tickets {
        index[t.ID] = t
        ids = append(ids, t.ID)
        placeholders = append(placeholders, "?")
    }
    rows, err := q.QueryContext(ctx,
        `SELECT ticket_id, occasion, redeemed_at FROM ticket_occasions WHERE ticket_id IN (`+strings.Join(placeholders, ",")+`)`,
        ids...)
    if err != nil {
        return err
    }
    defer rows.Close()
    for rows.Next() {
        var (
            ticketID, occasion string
            at                 time.Time
        )
        if err := rows.Scan(&ticketID, &occasion, &at); err != nil {
            return err
        }
        t, ok := index[ticketID]
        if !ok {
            continue
        }
        if t.Redemptions == nil {
            t.Redemptions = make(map[string]time.Time)
        }
        t.Redemptions[occasion] = at.UTC()
    }
    return rows.Err()
}

// LockByIDTx reads a ticket with SELECT ... FOR UPDATE, holding an
// exclusive InnoDB row lock until tx ends.  Occasion rows are read after
// the lock is taken; every writer of ticket_occasions holds the same
// ticket lock, so they cannot change underneath the caller.
// Returns sql.ErrNoRows when the ticket does not exist.
func (r *TicketRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Ticket, error) {
    row := tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ? FOR UPDATE`, id)
    t, err := scanTicket(row)
    if err != nil {
        return nil, err
    }
    if err := r.attachRedemptions(ctx, tx, []*model.Ticket{t}); err != nil {
        return nil, err
    }
    return t, nil
}

// MarkRedeemedTx records an admission.  With a non-empty occasion the
// per-occasion row is upserted as well; a forced re-admission overwrites
// its timestamp.
func (r *TicketRepo) MarkRedeemedTx(ctx context.Context, tx *sql.Tx, id, occasion string, at time.Time) error {
    at = at.UTC()
    if occasion != "" {
        if _, err := tx.ExecContext(ctx,
            `INSERT INTO ticket_occasions (ticket_id, occasion, redeemed_at) VALUES (?, ?, ?)
             ON DUPLICATE KEY UPDATE redeemed_at = VALUES(redeemed_at)`,
            id, occasion, at); err != nil {
            return err
        }
    }
    _, err := tx.ExecContext(ctx, `UPDATE tickets SET last_redeemed_at = ? WHERE id = ?`, at, id)
    return err
}

// ClearRedeemedTx resets the ticket for a window.  For the cooldown
// policy (empty occasion) last_redeemed_at becomes NULL.  For an occasion
// the row is removed and last_redeemed_at falls back to the latest
// remaining occasion, if any.
func (r *TicketRepo) ClearRedeemedTx(ctx context.Context, tx *sql.Tx, id, occasion string) error {
    if occasion == "" {
        _, err := tx.ExecContext(ctx, `UPDATE tickets SET last_redeemed_at = NULL WHERE id = ?`, id)
        return err
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_occasions WHERE ticket_id = ? AND occasion = ?`, id, occasion); err != nil {
        return err
    }
    _, err := tx.ExecContext(ctx,
        `UPDATE tickets SET last_redeemed_at = (SELECT MAX(redeemed_at) FROM ticket_occasions WHERE ticket_id = ?) WHERE id = ?`,
        id, id)
    return err
}

// Create inserts a newly issued ticket.  The issuance process owns id and
// code generation; this method only enforces uniqueness through the
// table's keys.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
    created := t.CreatedAt
    if created.IsZero() {
        created = time.Now()
    }
    created = created.UTC()
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO tickets (id, code, holder_name, holder_contact, category, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
        t.ID, t.Code, t.HolderName, t.HolderContact, string(t.Category), created)
    if err != nil {
        var me *mysql.MySQLError
        if errors.As(err, &me) && me.Number == 1062 {
            return ErrDuplicateTicket
        }
        return classify(err)
    }
    t.CreatedAt = created
    return nil
}
