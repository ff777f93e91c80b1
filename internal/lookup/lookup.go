// Package lookup resolves manual entry codes and searches tickets by
// holder.  It never changes ticket state: every admission still goes
// through the redemption engine.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/gate-redemption/internal/clock"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/redemption"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

const (
	DefaultSearchLimit = 20
	maxQueryLength     = 100
)

// Status is the display state of a ticket in the current window.  It is
// advisory only; the engine decides admissions.
type Status string

const (
	StatusRedeemable  Status = "REDEEMABLE"
	StatusRedeemed    Status = "REDEEMED"
	StatusInvalidated Status = "INVALIDATED"
	StatusNoWindow    Status = "NO_WINDOW"
)

// TicketView is a ticket as shown to gate staff.
type TicketView struct {
	ID             string               `json:"id"`
	Code           string               `json:"code"`
	HolderName     string               `json:"holder_name"`
	HolderContact  string               `json:"holder_contact,omitempty"`
	Category       model.Category       `json:"category"`
	Status         Status               `json:"status"`
	Occasion       string               `json:"occasion,omitempty"`
	LastRedeemedAt *time.Time           `json:"last_redeemed_at,omitempty"`
	Redemptions    map[string]time.Time `json:"redemptions,omitempty"`
}

// Service is the read-only ticket lookup.
type Service struct {
	store       repository.TicketReader
	policy      redemption.Policy
	clock       clock.Clock
	codeLength  int
	searchLimit int
}

// NewService builds a lookup service.  Non-positive sizes fall back to the
// defaults.
func NewService(store repository.TicketReader, policy redemption.Policy, clk clock.Clock, codeLength, searchLimit int) *Service {
	if store == nil || policy == nil {
		panic("nil store or policy passed to lookup.NewService")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if codeLength <= 0 {
		codeLength = model.DefaultCodeLength
	}
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Service{store: store, policy: policy, clock: clk, codeLength: codeLength, searchLimit: searchLimit}
}

// Classify tells a scanned QR payload from a typed code.
func (s *Service) Classify(raw string) (model.ScanInput, error) {
	return model.ClassifyScan(raw, s.codeLength)
}

// ResolveCode maps a manual entry code to its ticket id.
func (s *Service) ResolveCode(ctx context.Context, raw string) (string, error) {
	code, err := model.ParseCode(raw, s.codeLength)
	if err != nil {
		return "", err
	}
	t, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("resolve code: %w", err)
	}
	return t.ID, nil
}

// Resolve turns raw scanner input of either kind into a ticket id.  A QR
// payload is only validated; its existence is checked by the engine.
func (s *Service) Resolve(ctx context.Context, raw string) (string, error) {
	in, err := s.Classify(raw)
	if err != nil {
		return "", err
	}
	if in.Kind == model.InputTicketID {
		return in.Value, nil
	}
	return s.ResolveCode(ctx, in.Value)
}

// Get returns the view of one ticket.
func (s *Service) Get(ctx context.Context, rawID string) (TicketView, error) {
	id, err := model.ParseTicketID(rawID)
	if err != nil {
		return TicketView{}, err
	}
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return TicketView{}, fmt.Errorf("get ticket: %w", err)
	}
	return s.view(*t), nil
}

// GetByCode returns the view of the ticket with the given manual code.
func (s *Service) GetByCode(ctx context.Context, raw string) (TicketView, error) {
	code, err := model.ParseCode(raw, s.codeLength)
	if err != nil {
		return TicketView{}, err
	}
	t, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return TicketView{}, fmt.Errorf("get ticket by code: %w", err)
	}
	return s.view(*t), nil
}

// Search matches holder name, contact or code.  An empty query yields an
// empty result, never the whole table.
func (s *Service) Search(ctx context.Context, query string) ([]TicketView, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) > maxQueryLength {
		return nil, fmt.Errorf("%w: query longer than %d characters", model.ErrMalformedInput, maxQueryLength)
	}
	out := []TicketView{}
	if q == "" {
		return out, nil
	}
	tickets, err := s.store.Search(ctx, q, s.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search tickets: %w", err)
	}
	for _, t := range tickets {
		out = append(out, s.view(t))
	}
	return out, nil
}

func (s *Service) view(t model.Ticket) TicketView {
	v := TicketView{
		ID:             t.ID,
		Code:           t.Code,
		HolderName:     t.HolderName,
		HolderContact:  t.HolderContact,
		Category:       t.Category,
		LastRedeemedAt: t.LastRedeemedAt,
		Redemptions:    t.Redemptions,
	}
	if t.Invalidated() {
		v.Status = StatusInvalidated
		return v
	}
	now := s.clock.Now().UTC()
	w, err := s.policy.Window(now)
	if errors.Is(err, redemption.ErrNoActiveOccasion) {
		v.Status = StatusNoWindow
		return v
	}
	v.Occasion = w.Occasion
	if ok, _ := s.policy.Allows(t, w, now); ok {
		v.Status = StatusRedeemable
	} else {
		v.Status = StatusRedeemed
	}
	return v
}
