// Package queue defines the messages exchanged over RabbitMQ and the
// consumer that turns override events into an export log.
package queue

import "time"

// Queue names.  Both are durable and carry persistent JSON messages.
const (
    TicketAdmittedQueue   = "ticket.admitted"
    OverrideRecordedQueue = "override.recorded"
)

// TicketAdmittedEvent is published after an admission commits.
type TicketAdmittedEvent struct {
    TicketID   string    `json:"ticket_id"`
    HolderName string    `json:"holder_name"`
    Category   string    `json:"category"`
    Occasion   string    `json:"occasion,omitempty"`
    AdmittedAt time.Time `json:"admitted_at"`
}

// OverrideRecordedEvent is published after an override and its audit
// entry commit.
type OverrideRecordedEvent struct {
    EntryID       string    `json:"entry_id"`
    TicketID      string    `json:"ticket_id"`
    Action        string    `json:"action"`
    Justification string    `json:"justification"`
    OperatorID    string    `json:"operator_id"`
    Occasion      string    `json:"occasion,omitempty"`
    RecordedAt    time.Time `json:"recorded_at"`
}
