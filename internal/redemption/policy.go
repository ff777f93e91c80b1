package redemption

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/gate-redemption/internal/model"
)

// PolicyKind names the redemption window policy a deployment runs.  The
// two kinds keep different state and are never mixed in one deployment.
type PolicyKind string

const (
	PolicyCooldown PolicyKind = "cooldown"
	PolicyOccasion PolicyKind = "occasion"
)

// DefaultCooldown is the gap required between two admissions of a MULTI
// ticket under the cooldown policy.
const DefaultCooldown = 14 * time.Hour

// ErrNoActiveOccasion is returned by an occasion policy before the first
// scheduled occasion has started.  The engine fails closed on it.
var ErrNoActiveOccasion = errors.New("no active occasion")

// Window is the redemption window in effect at a point in time.  It is
// always derived on the server; Occasion is empty under the cooldown
// policy.
type Window struct {
	Occasion string
}

// Policy decides admissions.  Implementations are pure: they read the
// ticket and the time and never touch storage.
type Policy interface {
	Kind() PolicyKind
	// Window resolves the window in effect at now.
	Window(now time.Time) (Window, error)
	// Allows reports whether t may be admitted in w.  When it refuses, it
	// also returns the admission that blocks it.
	Allows(t model.Ticket, w Window, now time.Time) (bool, *time.Time)
	// ResetTargets lists the windows whose redemptions must be cleared so
	// that t is admissible again in w.
	ResetTargets(t model.Ticket, w Window) []string
}

// CooldownPolicy keys admissions on the single last_redeemed_at
// timestamp.  SINGLE tickets admit once; MULTI tickets admit again once
// Cooldown has elapsed.
type CooldownPolicy struct {
	Cooldown time.Duration
}

// NewCooldownPolicy returns a policy with the given cooldown, falling back
// to DefaultCooldown for non-positive values.
func NewCooldownPolicy(d time.Duration) *CooldownPolicy {
	if d <= 0 {
		d = DefaultCooldown
	}
	return &CooldownPolicy{Cooldown: d}
}

func (p *CooldownPolicy) Kind() PolicyKind { return PolicyCooldown }

func (p *CooldownPolicy) Window(time.Time) (Window, error) { return Window{}, nil }

func (p *CooldownPolicy) Allows(t model.Ticket, _ Window, now time.Time) (bool, *time.Time) {
	last := t.LastRedeemedAt
	if last == nil {
		return true, nil
	}
	if t.Category != model.CategoryMulti {
		return false, last
	}
	// A last_redeemed_at in the future (clock skew) yields a negative gap
	// and is refused.
	if now.Sub(*last) >= p.Cooldown {
		return true, nil
	}
	return false, last
}

func (p *CooldownPolicy) ResetTargets(model.Ticket, Window) []string { return []string{""} }

// Occasion is a named admission opportunity starting at Start.  It stays
// current until the next occasion starts.
type Occasion struct {
	Name  string
	Start time.Time
}

var occasionName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// OccasionPolicy keys admissions on per-occasion rows.  MULTI tickets
// admit once per occasion, SINGLE tickets once across all occasions.
type OccasionPolicy struct {
	occasions []Occasion
}

// NewOccasionPolicy validates and sorts a schedule.
func NewOccasionPolicy(occasions []Occasion) (*OccasionPolicy, error) {
	if len(occasions) == 0 {
		return nil, errors.New("occasion policy needs at least one occasion")
	}
	seen := make(map[string]bool, len(occasions))
	sorted := make([]Occasion, 0, len(occasions))
	for _, o := range occasions {
		if !occasionName.MatchString(o.Name) {
			return nil, fmt.Errorf("invalid occasion name %q", o.Name)
		}
		if seen[o.Name] {
			return nil, fmt.Errorf("duplicate occasion %q", o.Name)
		}
		seen[o.Name] = true
		sorted = append(sorted, Occasion{Name: o.Name, Start: o.Start.UTC()})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	return &OccasionPolicy{occasions: sorted}, nil
}

// ParseSchedule reads "A=2026-10-16T08:00:00Z,B=2026-10-17T08:00:00Z".
func ParseSchedule(s string) ([]Occasion, error) {
	var out []Occasion
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, start, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("occasion %q: expected NAME=RFC3339", part)
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(start))
		if err != nil {
			return nil, fmt.Errorf("occasion %q: %w", name, err)
		}
		out = append(out, Occasion{Name: strings.TrimSpace(name), Start: t})
	}
	return out, nil
}

// Occasions returns the schedule ordered by start.
func (p *OccasionPolicy) Occasions() []Occasion {
	return append([]Occasion(nil), p.occasions...)
}

func (p *OccasionPolicy) Kind() PolicyKind { return PolicyOccasion }

func (p *OccasionPolicy) Window(now time.Time) (Window, error) {
	current := ""
	for _, o := range p.occasions {
		if o.Start.After(now) {
			break
		}
		current = o.Name
	}
	if current == "" {
		return Window{}, ErrNoActiveOccasion
	}
	return Window{Occasion: current}, nil
}

func (p *OccasionPolicy) Allows(t model.Ticket, w Window, _ time.Time) (bool, *time.Time) {
	if t.Category != model.CategoryMulti {
		if prev := latestRedemption(t.Redemptions); prev != nil {
			return false, prev
		}
		return true, nil
	}
	if at, ok := t.Redemptions[w.Occasion]; ok {
		return false, &at
	}
	return true, nil
}

// ResetTargets returns the current occasion for MULTI tickets.  A SINGLE
// ticket is blocked by a redemption in any occasion, so all of them are
// returned.
func (p *OccasionPolicy) ResetTargets(t model.Ticket, w Window) []string {
	if t.Category == model.CategoryMulti || len(t.Redemptions) == 0 {
		return []string{w.Occasion}
	}
	out := make([]string, 0, len(t.Redemptions))
	for name := range t.Redemptions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func latestRedemption(m map[string]time.Time) *time.Time {
	var out *time.Time
	for _, at := range m {
		if out == nil || at.After(*out) {
			v := at
			out = &v
		}
	}
	return out
}
