package model

import "time"

// Category is the admission class of a ticket.  The set is closed: any
// other value stored in the database is treated as SINGLE.
type Category string

const (
    CategorySingle Category = "SINGLE" // admits once, ever
    CategoryMulti  Category = "MULTI"  // admits once per redemption window
)

// ParseCategory normalises a stored or user-supplied category.  Unknown
// values return false.
func ParseCategory(s string) (Category, bool) {
    switch Category(s) {
    case CategorySingle, CategoryMulti:
        return Category(s), true
    }
    return "", false
}

// Ticket represents an entry ticket as stored in the `tickets` table.
// Redemptions holds the per-occasion rows from `ticket_occasions`; it is
// only populated (and only consulted) when the deployment runs the
// occasion policy.
//
// Fields:
//  ID             – canonical lowercase UUID, embedded in the QR code.
//  Code           – fixed-length numeric code for manual entry.
//  HolderName     – display name printed on the ticket.
//  HolderContact  – e-mail or phone of the holder.
//  Category       – SINGLE or MULTI.
//  LastRedeemedAt – most recent admission (nil if never redeemed).
//  Redemptions    – occasion name -> admission time.
//  InvalidatedAt  – soft invalidation marker (nil while valid).
//  CreatedAt      – issuance timestamp.
type Ticket struct {
    ID             string               // tickets.id
    Code           string               // tickets.code
    HolderName     string               // tickets.holder_name
    HolderContact  string               // tickets.holder_contact
    Category       Category             // tickets.category
    LastRedeemedAt *time.Time           // tickets.last_redeemed_at (nullable)
    Redemptions    map[string]time.Time // ticket_occasions rows
    InvalidatedAt  *time.Time           // tickets.invalidated_at (nullable)
    CreatedAt      time.Time            // tickets.created_at
}

// Invalidated reports whether the ticket was soft-invalidated.
func (t *Ticket) Invalidated() bool { return t.InvalidatedAt != nil }

// Clone returns a deep copy so callers can mutate it without touching
// shared state.
func (t Ticket) Clone() Ticket {
    out := t
    if t.LastRedeemedAt != nil {
        at := *t.LastRedeemedAt
        out.LastRedeemedAt = &at
    }
    if t.InvalidatedAt != nil {
        at := *t.InvalidatedAt
        out.InvalidatedAt = &at
    }
    if t.Redemptions != nil {
        out.Redemptions = make(map[string]time.Time, len(t.Redemptions))
        for k, v := range t.Redemptions {
            out.Redemptions[k] = v
        }
    }
    return out
}
