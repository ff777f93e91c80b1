package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/gate-redemption/internal/model"
)

// OverrideLogRepo provides append and read access to the override_log
// table.  There is intentionally no update or delete method: rows are
// immutable once written.
type OverrideLogRepo struct {
    db *sql.DB
}

// NewOverrideLogRepo returns a new OverrideLogRepo bound to db.
func NewOverrideLogRepo(db *sql.DB) *OverrideLogRepo { return &OverrideLogRepo{db: db} }

// AppendTx inserts one audit row inside the transaction that performs the
// ticket mutation it documents.
func (r *OverrideLogRepo) AppendTx(ctx context.Context, tx *sql.Tx, e model.OverrideLogEntry) error {
    _, err := tx.ExecContext(ctx,
        `INSERT INTO override_log (id, ticket_id, action, justification, operator_id, occasion, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
        e.ID, e.TicketID, string(e.Action), e.Justification, e.OperatorID, e.Occasion, e.CreatedAt.UTC())
    return err
}

// ListByTicket returns every audit row for a ticket, newest first.  An
// unknown ticket yields an empty slice.
func (r *OverrideLogRepo) ListByTicket(ctx context.Context, ticketID string) ([]model.OverrideLogEntry, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, ticket_id, action, justification, operator_id, occasion, created_at
         FROM override_log
         WHERE ticket_id = ?
         ORDER BY created_at DESC, id DESC`,
        ticketID)
    if err != nil {
        return nil, classify(err)
    }
    defer rows.Close()
    out := make([]model.OverrideLogEntry, 0)
    for rows.Next() {
        var (
            e      model.OverrideLogEntry
            action string
        )
        if err := rows.Scan(&e.ID, &e.TicketID, &action, &e.Justification, &e.OperatorID, &e.Occasion, &e.CreatedAt); err != nil {
            return nil, classify(err)
        }
        e.Action = model.OverrideAction(action)
        e.CreatedAt = e.CreatedAt.UTC()
        out = append(out, e)
    }
    if err := rows.Err(); err != nil {
        return nil, classify(err)
    }
    return out, nil
}
