// Package issuance creates tickets with fresh identifiers and manual
// entry codes.
package issuance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

const maxAttempts = 8

// Creator is the write side of the ticket store.
type Creator interface {
	Create(ctx context.Context, t *model.Ticket) error
}

// Request describes one ticket to issue.
type Request struct {
	HolderName    string
	HolderContact string
	Category      model.Category
}

// Issuer draws ids and codes and retries when a code collides.
type Issuer struct {
	store      Creator
	codeLength int
	now        func() time.Time
}

// NewIssuer returns an issuer producing codes of codeLength digits.
func NewIssuer(store Creator, codeLength int) *Issuer {
	if codeLength <= 0 {
		codeLength = model.DefaultCodeLength
	}
	return &Issuer{store: store, codeLength: codeLength, now: time.Now}
}

// Issue creates one ticket.
func (is *Issuer) Issue(ctx context.Context, req Request) (*model.Ticket, error) {
	name := strings.TrimSpace(req.HolderName)
	if name == "" {
		return nil, fmt.Errorf("%w: holder name is required", model.ErrMalformedInput)
	}
	cat, ok := model.ParseCategory(strings.ToUpper(string(req.Category)))
	if !ok {
		return nil, fmt.Errorf("%w: category must be SINGLE or MULTI", model.ErrMalformedInput)
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomCode(is.codeLength)
		if err != nil {
			return nil, err
		}
		t := &model.Ticket{
			ID:            uuid.NewString(),
			Code:          code,
			HolderName:    name,
			HolderContact: strings.TrimSpace(req.HolderContact),
			Category:      cat,
			CreatedAt:     is.now().UTC(),
		}
		err = is.store.Create(ctx, t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, repository.ErrDuplicateTicket) {
			return nil, fmt.Errorf("create ticket: %w", err)
		}
	}
	return nil, fmt.Errorf("no free code after %d attempts: %w", maxAttempts, repository.ErrDuplicateTicket)
}

func randomCode(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
