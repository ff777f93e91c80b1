// Package redemption is the single authoritative decision point for
// admitting a ticket holder.  Redeem is the only non-privileged path that
// changes ticket state.
package redemption

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/gate-redemption/internal/clock"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

// DefaultTimeout bounds one redemption transaction, lock wait included.
const DefaultTimeout = 5 * time.Second

var errInvalidated = errors.New("ticket invalidated")

// AdmissionNotifier is told about every committed admission.  It must not
// block the caller for long and its failures never change an outcome.
type AdmissionNotifier interface {
	TicketAdmitted(ctx context.Context, o model.Outcome)
}

// Engine evaluates the deployment policy under a per-ticket lock.
type Engine struct {
	store    repository.TicketLocker
	policy   Policy
	clock    clock.Clock
	timeout  time.Duration
	logger   *slog.Logger
	notifier AdmissionNotifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithTimeout sets the transaction deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithNotifier registers a post-commit admission hook.
func WithNotifier(n AdmissionNotifier) Option { return func(e *Engine) { e.notifier = n } }

// NewEngine builds an engine.  store and policy must be non-nil.
func NewEngine(store repository.TicketLocker, policy Policy, opts ...Option) *Engine {
	if store == nil || policy == nil {
		panic("nil store or policy passed to NewEngine")
	}
	e := &Engine{
		store:   store,
		policy:  policy,
		clock:   clock.Real(),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the policy the engine enforces.
func (e *Engine) Policy() Policy { return e.policy }

// Redeem admits the holder of ticketID at most once per window.
//
// The identifier is validated before storage is touched.  The decision and
// the state change happen inside one transaction holding the ticket row
// exclusively, so of several concurrent calls on one ticket exactly one
// can be admitted.  Any store failure returns REJECTED_SYSTEM_ERROR with
// nothing applied.  A retried call on an admitted ticket is rejected as
// already used.
func (e *Engine) Redeem(ctx context.Context, ticketID string) model.Outcome {
	id, err := model.ParseTicketID(ticketID)
	if err != nil {
		return model.Outcome{Kind: model.RejectedNotFound, Reason: "malformed ticket identifier"}
	}

	// The transaction is not cancellable by the client once started.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	var out model.Outcome
	err = e.store.WithTicketLock(ctx, id, func(lt repository.LockedTicket) error {
		t := lt.Ticket()
		out = model.Outcome{TicketID: t.ID, HolderName: t.HolderName, Category: t.Category}
		if t.Invalidated() {
			return errInvalidated
		}
		now := e.clock.Now().UTC()
		w, err := e.policy.Window(now)
		if err != nil {
			return err
		}
		out.Occasion = w.Occasion
		if ok, prev := e.policy.Allows(t, w, now); !ok {
			out.RedeemedAt = prev
			return model.ErrAlreadyRedeemed
		}
		if err := lt.MarkRedeemed(ctx, w.Occasion, now); err != nil {
			return err
		}
		out.Kind = model.Admitted
		out.RedeemedAt = &now
		return nil
	})

	switch {
	case err == nil:
		e.logger.Info("ticket admitted", "ticket_id", id, "occasion", out.Occasion)
		if e.notifier != nil {
			e.notifier.TicketAdmitted(ctx, out)
		}
		return out
	case errors.Is(err, model.ErrAlreadyRedeemed):
		out.Kind = model.RejectedAlreadyUsed
		out.Reason = "already redeemed in the current window"
		return out
	case errors.Is(err, errInvalidated):
		out.Kind = model.RejectedNotFound
		out.RedeemedAt = nil
		out.Reason = "ticket invalidated"
		return out
	case errors.Is(err, repository.ErrTicketNotFound):
		return model.Outcome{Kind: model.RejectedNotFound, TicketID: id, Reason: "no ticket with this identifier"}
	case errors.Is(err, ErrNoActiveOccasion):
		e.logger.Warn("redeem outside any occasion", "ticket_id", id)
		return model.Outcome{Kind: model.RejectedSystemError, TicketID: id, Reason: "no admission window is open"}
	default:
		e.logger.Error("redeem failed", "ticket_id", id, "error", err)
		return model.Outcome{Kind: model.RejectedSystemError, TicketID: id, Reason: "ticket store unavailable, nothing was applied"}
	}
}
