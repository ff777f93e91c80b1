package model

import "time"

// OutcomeKind is the closed set of results a redemption can produce.
type OutcomeKind string

const (
    Admitted            OutcomeKind = "ADMITTED"
    RejectedAlreadyUsed OutcomeKind = "REJECTED_ALREADY_USED"
    RejectedNotFound    OutcomeKind = "REJECTED_NOT_FOUND"
    RejectedSystemError OutcomeKind = "REJECTED_SYSTEM_ERROR"
)

// Outcome is what the engine tells a scanner.  Only Kind == Admitted lets
// the holder in; every other value must be shown as a rejection.
type Outcome struct {
    Kind       OutcomeKind `json:"outcome"`
    TicketID   string      `json:"ticket_id,omitempty"`
    HolderName string      `json:"holder_name,omitempty"`
    Category   Category    `json:"category,omitempty"`
    Occasion   string      `json:"occasion,omitempty"`
    // RedeemedAt is the admission time for ADMITTED and the previous
    // admission for REJECTED_ALREADY_USED.
    RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
    Reason     string     `json:"reason,omitempty"`
}

// Admitted reports whether the holder may enter.
func (o Outcome) Admitted() bool { return o.Kind == Admitted }
