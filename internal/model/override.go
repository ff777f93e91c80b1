package model

import "time"

// OverrideAction is the kind of privileged action recorded in the audit log.
type OverrideAction string

const (
    ActionForceAdmit OverrideAction = "FORCE_ADMIT"
    ActionReset      OverrideAction = "RESET"
)

// OverrideLogEntry mirrors a row of the append-only `override_log` table.
// Entries are written in the same transaction as the ticket mutation they
// document and are never updated or deleted.
type OverrideLogEntry struct {
    ID            string         `json:"id"`
    TicketID      string         `json:"ticket_id"`
    Action        OverrideAction `json:"action"`
    Justification string         `json:"justification"`
    OperatorID    string         `json:"operator_id"`
    Occasion      string         `json:"occasion,omitempty"`
    CreatedAt     time.Time      `json:"created_at"`
}
