// Package override implements the supervisor actions that bypass the
// redemption policy.  Every action writes its audit entry in the same
// transaction as the ticket change, so neither can exist without the other.
package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/gate-redemption/internal/clock"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/redemption"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

const (
	DefaultMinJustification = 10
	maxJustification        = 1000
	maxOperatorID           = 64
)

// ErrInvalidRequest is returned when an override is missing a usable
// justification or operator.  Nothing is mutated.
var ErrInvalidRequest = errors.New("invalid override request")

// Request is a supervisor action on one ticket.
type Request struct {
	TicketID      string
	Justification string
	OperatorID    string
}

// Result describes an applied override.
type Result struct {
	TicketID   string               `json:"ticket_id"`
	HolderName string               `json:"holder_name"`
	Action     model.OverrideAction `json:"action"`
	EntryID    string               `json:"entry_id"`
	Occasion   string               `json:"occasion,omitempty"`
	At         time.Time            `json:"at"`
}

// Store is what overrides need from persistence.
type Store interface {
	repository.TicketLocker
	repository.AuditReader
}

// Notifier is told about each committed override entry.
type Notifier interface {
	OverrideRecorded(ctx context.Context, e model.OverrideLogEntry)
}

// Service applies overrides under the same per-ticket lock the engine
// uses.
type Service struct {
	store            Store
	policy           redemption.Policy
	clock            clock.Clock
	minJustification int
	timeout          time.Duration
	logger           *slog.Logger
	notifier         Notifier
}

// Config carries the tunables of Service.
type Config struct {
	MinJustification int
	Timeout          time.Duration
	Clock            clock.Clock
	Logger           *slog.Logger
	Notifier         Notifier
}

// NewService builds an override service.
func NewService(store Store, policy redemption.Policy, cfg Config) *Service {
	if store == nil || policy == nil {
		panic("nil store or policy passed to override.NewService")
	}
	s := &Service{
		store:            store,
		policy:           policy,
		clock:            cfg.Clock,
		minJustification: cfg.MinJustification,
		timeout:          cfg.Timeout,
		logger:           cfg.Logger,
		notifier:         cfg.Notifier,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.minJustification <= 0 {
		s.minJustification = DefaultMinJustification
	}
	if s.timeout <= 0 {
		s.timeout = redemption.DefaultTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ForceAdmit records an admission regardless of prior redemptions.
func (s *Service) ForceAdmit(ctx context.Context, req Request) (Result, error) {
	return s.apply(ctx, req, model.ActionForceAdmit)
}

// ResetEntry returns the ticket to "never redeemed" for the current
// window, so the next scan admits.
func (s *Service) ResetEntry(ctx context.Context, req Request) (Result, error) {
	return s.apply(ctx, req, model.ActionReset)
}

// History lists the override entries of a ticket, newest first.
func (s *Service) History(ctx context.Context, rawID string) ([]model.OverrideLogEntry, error) {
	id, err := model.ParseTicketID(rawID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListOverrides(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return entries, nil
}

func (s *Service) validate(req Request) (Request, error) {
	id, err := model.ParseTicketID(req.TicketID)
	if err != nil {
		return Request{}, err
	}
	just := strings.TrimSpace(req.Justification)
	if n := utf8.RuneCountInString(just); n < s.minJustification {
		return Request{}, fmt.Errorf("%w: justification needs at least %d characters", ErrInvalidRequest, s.minJustification)
	} else if n > maxJustification {
		return Request{}, fmt.Errorf("%w: justification longer than %d characters", ErrInvalidRequest, maxJustification)
	}
	op := strings.TrimSpace(req.OperatorID)
	if op == "" || len(op) > maxOperatorID {
		return Request{}, fmt.Errorf("%w: operator id must be 1-%d characters", ErrInvalidRequest, maxOperatorID)
	}
	return Request{TicketID: id, Justification: just, OperatorID: op}, nil
}

func (s *Service) apply(ctx context.Context, req Request, action model.OverrideAction) (Result, error) {
	req, err := s.validate(req)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var (
		res   Result
		entry model.OverrideLogEntry
	)
	err = s.store.WithTicketLock(ctx, req.TicketID, func(lt repository.LockedTicket) error {
		t := lt.Ticket()
		if t.Invalidated() {
			return fmt.Errorf("ticket invalidated: %w", repository.ErrTicketNotFound)
		}
		now := s.clock.Now().UTC()
		w, err := s.policy.Window(now)
		if err != nil {
			return err
		}
		switch action {
		case model.ActionForceAdmit:
			err = lt.MarkRedeemed(ctx, w.Occasion, now)
		case model.ActionReset:
			for _, target := range s.policy.ResetTargets(t, w) {
				if err = lt.ClearRedeemed(ctx, target); err != nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}
		entry = model.OverrideLogEntry{
			ID:            uuid.NewString(),
			TicketID:      t.ID,
			Action:        action,
			Justification: req.Justification,
			OperatorID:    req.OperatorID,
			Occasion:      w.Occasion,
			CreatedAt:     now,
		}
		if err := lt.AppendOverride(ctx, entry); err != nil {
			return err
		}
		res = Result{TicketID: t.ID, HolderName: t.HolderName, Action: action, EntryID: entry.ID, Occasion: w.Occasion, At: now}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", strings.ToLower(string(action)), req.TicketID, err)
	}

	s.logger.Info("override applied", "action", action, "ticket_id", res.TicketID,
		"operator_id", req.OperatorID, "entry_id", res.EntryID, "occasion", res.Occasion)
	if s.notifier != nil {
		s.notifier.OverrideRecorded(ctx, entry)
	}
	return res, nil
}
