package redemption

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gate-redemption/internal/clock"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

const (
	singleID = "3f2b8c1e-9a4d-4e7b-8c2a-1d5e6f7a8b9c"
	multiID  = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &model.Ticket{ID: singleID, Code: "100001", HolderName: "Ada", Category: model.CategorySingle}))
	require.NoError(t, s.Create(ctx, &model.Ticket{ID: multiID, Code: "100002", HolderName: "Bob", Category: model.CategoryMulti}))
	return s
}

func TestRedeemSingleOnce(t *testing.T) {
	s := seed(t)
	clk := clock.NewFake(t0)
	e := NewEngine(s, NewCooldownPolicy(DefaultCooldown), WithClock(clk))

	first := e.Redeem(context.Background(), singleID)
	require.Equal(t, model.Admitted, first.Kind)
	assert.Equal(t, "Ada", first.HolderName)
	require.NotNil(t, first.RedeemedAt)
	assert.True(t, first.RedeemedAt.Equal(t0))

	clk.Advance(30 * 24 * time.Hour)
	second := e.Redeem(context.Background(), singleID)
	assert.Equal(t, model.RejectedAlreadyUsed, second.Kind)
	require.NotNil(t, second.RedeemedAt)
	assert.True(t, second.RedeemedAt.Equal(t0), "rejection reports the earlier admission")
}

func TestRedeemAcceptsUppercaseID(t *testing.T) {
	s := seed(t)
	e := NewEngine(s, NewCooldownPolicy(0), WithClock(clock.NewFake(t0)))
	out := e.Redeem(context.Background(), "  7C9E6679-7425-40DE-944B-E07FC1F90AE7 ")
	assert.Equal(t, model.Admitted, out.Kind)
	assert.Equal(t, multiID, out.TicketID)
}

func TestRedeemConcurrentAdmitsExactlyOne(t *testing.T) {
	s := seed(t)
	e := NewEngine(s, NewCooldownPolicy(DefaultCooldown), WithClock(clock.NewFake(t0)))

	const n = 50
	var wg sync.WaitGroup
	results := make(chan model.Outcome, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- e.Redeem(context.Background(), multiID)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	counts := map[model.OutcomeKind]int{}
	for o := range results {
		counts[o.Kind]++
	}
	assert.Equal(t, 1, counts[model.Admitted])
	assert.Equal(t, n-1, counts[model.RejectedAlreadyUsed])
}

func TestRedeemMultiCooldown(t *testing.T) {
	s := seed(t)
	clk := clock.NewFake(t0)
	e := NewEngine(s, NewCooldownPolicy(14*time.Hour), WithClock(clk))
	ctx := context.Background()

	require.Equal(t, model.Admitted, e.Redeem(ctx, multiID).Kind)

	clk.Advance(14*time.Hour - time.Second)
	assert.Equal(t, model.RejectedAlreadyUsed, e.Redeem(ctx, multiID).Kind)

	clk.Advance(time.Second)
	assert.Equal(t, model.Admitted, e.Redeem(ctx, multiID).Kind)
	assert.Equal(t, model.RejectedAlreadyUsed, e.Redeem(ctx, multiID).Kind)
}

func TestRedeemOccasions(t *testing.T) {
	s := seed(t)
	clk := clock.NewFake(t0)
	pol, err := NewOccasionPolicy([]Occasion{
		{Name: "B", Start: t0.Add(24 * time.Hour)},
		{Name: "A", Start: t0},
	})
	require.NoError(t, err)
	e := NewEngine(s, pol, WithClock(clk))
	ctx := context.Background()

	out := e.Redeem(ctx, multiID)
	require.Equal(t, model.Admitted, out.Kind)
	assert.Equal(t, "A", out.Occasion)
	assert.Equal(t, model.RejectedAlreadyUsed, e.Redeem(ctx, multiID).Kind)
	require.Equal(t, model.Admitted, e.Redeem(ctx, singleID).Kind)

	clk.Advance(25 * time.Hour)
	out = e.Redeem(ctx, multiID)
	require.Equal(t, model.Admitted, out.Kind)
	assert.Equal(t, "B", out.Occasion)

	out = e.Redeem(ctx, singleID)
	assert.Equal(t, model.RejectedAlreadyUsed, out.Kind)
	assert.Equal(t, "B", out.Occasion)

	tk, err := s.GetByID(ctx, multiID)
	require.NoError(t, err)
	assert.Len(t, tk.Redemptions, 2)
}

func TestRedeemBeforeFirstOccasionFailsClosed(t *testing.T) {
	s := seed(t)
	pol, err := NewOccasionPolicy([]Occasion{{Name: "A", Start: t0}})
	require.NoError(t, err)
	e := NewEngine(s, pol, WithClock(clock.NewFake(t0.Add(-time.Minute))))

	out := e.Redeem(context.Background(), multiID)
	assert.Equal(t, model.RejectedSystemError, out.Kind)

	tk, err := s.GetByID(context.Background(), multiID)
	require.NoError(t, err)
	assert.Nil(t, tk.LastRedeemedAt)
}

func TestRedeemMalformedAndUnknown(t *testing.T) {
	s := seed(t)
	e := NewEngine(s, NewCooldownPolicy(0), WithClock(clock.NewFake(t0)))

	for _, raw := range []string{"", "not-a-uuid", "123456", singleID + "x"} {
		out := e.Redeem(context.Background(), raw)
		assert.Equal(t, model.RejectedNotFound, out.Kind, raw)
		assert.Empty(t, out.TicketID, raw)
	}

	out := e.Redeem(context.Background(), "00000000-0000-4000-8000-000000000000")
	assert.Equal(t, model.RejectedNotFound, out.Kind)
}

func TestRedeemInvalidatedTicket(t *testing.T) {
	s := repository.NewMemoryStore()
	at := t0.Add(-time.Hour)
	require.NoError(t, s.Create(context.Background(), &model.Ticket{
		ID: singleID, Code: "100001", HolderName: "Ada", Category: model.CategorySingle, InvalidatedAt: &at,
	}))
	e := NewEngine(s, NewCooldownPolicy(0), WithClock(clock.NewFake(t0)))

	out := e.Redeem(context.Background(), singleID)
	assert.Equal(t, model.RejectedNotFound, out.Kind)
	assert.Nil(t, out.RedeemedAt)
}

type failingLocker struct {
	err       error
	failOnFn  bool
	lockCalls int
}

func (f *failingLocker) WithTicketLock(ctx context.Context, id string, fn func(repository.LockedTicket) error) error {
	f.lockCalls++
	if f.failOnFn {
		lt := &stubLocked{t: model.Ticket{ID: id, Category: model.CategorySingle}, markErr: f.err}
		return fn(lt)
	}
	return f.err
}

type stubLocked struct {
	t       model.Ticket
	markErr error
}

func (s *stubLocked) Ticket() model.Ticket { return s.t }
func (s *stubLocked) MarkRedeemed(context.Context, string, time.Time) error {
	return s.markErr
}
func (s *stubLocked) ClearRedeemed(context.Context, string) error { return nil }
func (s *stubLocked) AppendOverride(context.Context, model.OverrideLogEntry) error {
	return nil
}

func TestRedeemStoreFailureIsSystemError(t *testing.T) {
	unavailable := errors.Join(repository.ErrStoreUnavailable, errors.New("connection refused"))

	for name, l := range map[string]*failingLocker{
		"begin":  {err: unavailable},
		"update": {err: unavailable, failOnFn: true},
	} {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(l, NewCooldownPolicy(0), WithClock(clock.NewFake(t0)))
			out := e.Redeem(context.Background(), singleID)
			assert.Equal(t, model.RejectedSystemError, out.Kind)
			assert.False(t, out.Admitted())
			assert.Equal(t, 1, l.lockCalls)
		})
	}
}

func TestRedeemIgnoresCallerCancellation(t *testing.T) {
	s := seed(t)
	e := NewEngine(s, NewCooldownPolicy(0), WithClock(clock.NewFake(t0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Redeem(ctx, singleID)
	assert.Equal(t, model.Admitted, out.Kind)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []model.Outcome
}

func (r *recordingNotifier) TicketAdmitted(_ context.Context, o model.Outcome) {
	r.mu.Lock()
	r.got = append(r.got, o)
	r.mu.Unlock()
}

func TestRedeemNotifiesOnlyAdmissions(t *testing.T) {
	s := seed(t)
	n := &recordingNotifier{}
	e := NewEngine(s, NewCooldownPolicy(0), WithClock(clock.NewFake(t0)), WithNotifier(n))

	e.Redeem(context.Background(), singleID)
	e.Redeem(context.Background(), singleID)
	e.Redeem(context.Background(), "garbage")

	require.Len(t, n.got, 1)
	assert.Equal(t, singleID, n.got[0].TicketID)
}
