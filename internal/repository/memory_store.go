package repository

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/iliyamo/gate-redemption/internal/model"
)

// memEntry holds one ticket.  lock is the row lock: it is held for the
// whole critical section of WithTicketLock.  mu only guards the committed
// fields, so readers never wait behind a redemption in progress.
type memEntry struct {
    lock      sync.Mutex
    mu        sync.RWMutex
    ticket    model.Ticket
    overrides []model.OverrideLogEntry
}

// MemoryStore is a single-process TicketStore.  It gives the same
// per-ticket exclusivity as the MySQL store through a mutex per ticket and
// is used for tests and single-node demos (STORE_DRIVER=memory).
type MemoryStore struct {
    mu     sync.RWMutex
    byID   map[string]*memEntry
    byCode map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
    return &MemoryStore{byID: make(map[string]*memEntry), byCode: make(map[string]string)}
}

func (s *MemoryStore) entry(id string) *memEntry {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.byID[id]
}

func (e *memEntry) snapshot() model.Ticket {
    e.mu.RLock()
    defer e.mu.RUnlock()
    return e.ticket.Clone()
}

// Create inserts a ticket, enforcing unique id and code.
func (s *MemoryStore) Create(ctx context.Context, t *model.Ticket) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.byID[t.ID]; ok {
        return ErrDuplicateTicket
    }
    if _, ok := s.byCode[t.Code]; ok {
        return ErrDuplicateTicket
    }
    if t.CreatedAt.IsZero() {
        t.CreatedAt = time.Now().UTC()
    }
    s.byID[t.ID] = &memEntry{ticket: t.Clone()}
    s.byCode[t.Code] = t.ID
    return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    e := s.entry(id)
    if e == nil {
        return nil, ErrTicketNotFound
    }
    t := e.snapshot()
    return &t, nil
}

func (s *MemoryStore) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    s.mu.RLock()
    id, ok := s.byCode[code]
    s.mu.RUnlock()
    if !ok {
        return nil, ErrTicketNotFound
    }
    return s.GetByID(ctx, id)
}

// Search matches name, contact and code substrings case-insensitively and
// orders by holder name like the SQL store.
func (s *MemoryStore) Search(ctx context.Context, query string, limit int) ([]model.Ticket, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    q := strings.ToLower(strings.TrimSpace(query))
    out := []model.Ticket{}
    if q == "" || limit <= 0 {
        return out, nil
    }
    s.mu.RLock()
    entries := make([]*memEntry, 0, len(s.byID))
    for _, e := range s.byID {
        entries = append(entries, e)
    }
    s.mu.RUnlock()
    for _, e := range entries {
        t := e.snapshot()
        if strings.Contains(strings.ToLower(t.HolderName), q) ||
            strings.Contains(strings.ToLower(t.HolderContact), q) ||
            strings.Contains(t.Code, q) {
            out = append(out, t)
        }
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].HolderName != out[j].HolderName {
            return out[i].HolderName < out[j].HolderName
        }
        return out[i].ID < out[j].ID
    })
    if len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (s *MemoryStore) ListOverrides(ctx context.Context, ticketID string) ([]model.OverrideLogEntry, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    out := []model.OverrideLogEntry{}
    e := s.entry(ticketID)
    if e == nil {
        return out, nil
    }
    e.mu.RLock()
    for i := len(e.overrides) - 1; i >= 0; i-- {
        out = append(out, e.overrides[i])
    }
    e.mu.RUnlock()
    sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
    return out, nil
}

// WithTicketLock serialises callers per ticket.  fn works on a staged copy
// which is published atomically when fn returns nil.
func (s *MemoryStore) WithTicketLock(ctx context.Context, id string, fn func(LockedTicket) error) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    e := s.entry(id)
    if e == nil {
        return ErrTicketNotFound
    }
    e.lock.Lock()
    defer e.lock.Unlock()

    staged := &memLockedTicket{ticket: e.snapshot()}
    if err := fn(staged); err != nil {
        return err
    }
    e.mu.Lock()
    e.ticket = staged.ticket
    e.overrides = append(e.overrides, staged.appended...)
    e.mu.Unlock()
    return nil
}

type memLockedTicket struct {
    ticket   model.Ticket
    appended []model.OverrideLogEntry
}

func (l *memLockedTicket) Ticket() model.Ticket { return l.ticket.Clone() }

func (l *memLockedTicket) MarkRedeemed(ctx context.Context, occasion string, at time.Time) error {
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

func (l *memLockedTicket) ClearRedeemed(ctx context.Context, occasion string) error {
    if occasion == "" {
        l.ticket.LastRedeemedAt = nil
        return nil
    }
    delete(l.ticket.Redemptions, occasion)
    l.ticket.LastRedeemedAt = latest(l.ticket.Redemptions)
    return nil
}

func (l *memLockedTicket) AppendOverride(ctx context.Context, e model.OverrideLogEntry) error {
    l.appended = append(l.appended, e)
    return nil
}

var _ TicketStore = (*MemoryStore)(nil)
