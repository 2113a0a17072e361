package creditsync_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cs "github.com/ineyio/creditsync"
	"github.com/ineyio/creditsync/fetcher/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPrefs struct {
	value bool
}

func (p *memPrefs) SuppressConfirmations(context.Context) (bool, error) { return p.value, nil }

func (p *memPrefs) SetSuppressConfirmations(_ context.Context, v bool) error {
	p.value = v
	return nil
}

func newTestSession(t *testing.T, f cs.BalanceFetcher, opts ...cs.Option) (*cs.Session, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]cs.Option{cs.WithClock(clock)}, opts...)
	s, err := cs.NewSession(f, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, clock
}

func TestNewSession_RequiresFetcher(t *testing.T) {
	_, err := cs.NewSession(nil)
	assert.Error(t, err)
}

func TestNewSession_RejectsInvalidConfig(t *testing.T) {
	cfg := cs.DefaultConfig()
	cfg.ReconcileDelay = -time.Second

	_, err := cs.NewSession(mock.New(), cs.WithConfig(cfg))
	assert.ErrorIs(t, err, cs.ErrInvalidConfig)
}

func TestNewSession_UniqueIDs(t *testing.T) {
	a, _ := newTestSession(t, mock.New())
	b, _ := newTestSession(t, mock.New())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSession_StartsCold(t *testing.T) {
	s, _ := newTestSession(t, mock.New())
	_, ok := s.Read()
	assert.False(t, ok)
}

// The optimistic/authoritative round trip end to end.
func TestSession_DeductThenReconcileScenario(t *testing.T) {
	f := mock.New(mock.WithBalance(cs.Balance{Remaining: 100, Tier: cs.TierFree}))
	s, clock := newTestSession(t, f)

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	f.SetBalance(cs.Balance{Remaining: 90, Tier: cs.TierFree})

	require.NoError(t, s.ApplyLocalDeduction(5))
	b, _ := s.Read()
	assert.Equal(t, cs.Balance{Remaining: 95, Tier: cs.TierFree}, b)

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, s.ApplyLocalDeduction(3))
	b, _ = s.Read()
	assert.Equal(t, cs.Balance{Remaining: 92, Tier: cs.TierFree}, b)

	clock.Advance(time.Second)
	assert.Equal(t, int64(2), f.CallCount(), "load plus exactly one reconciliation")
	b, _ = s.Read()
	assert.Equal(t, cs.Balance{Remaining: 90, Tier: cs.TierFree}, b)
}

func TestSession_EventualConsistency(t *testing.T) {
	for _, server := range []int64{0, 17, 250} {
		t.Run(fmt.Sprint(server), func(t *testing.T) {
			f := mock.New(mock.WithBalance(cs.Balance{Remaining: 200, Tier: cs.TierPro}))
			s, clock := newTestSession(t, f)
			_, err := s.Load(context.Background())
			require.NoError(t, err)

			f.SetBalance(cs.Balance{Remaining: server, Tier: cs.TierPro})
			for i := int64(1); i <= 20; i++ {
				require.NoError(t, s.ApplyLocalDeduction(i))
			}
			clock.Advance(time.Second)

			b, _ := s.Read()
			assert.Equal(t, server, b.Remaining)
		})
	}
}

func TestSession_SubscribersSeeEveryChange(t *testing.T) {
	f := mock.New(mock.WithBalance(cs.Balance{Remaining: 50, Tier: cs.TierBasic}))
	s, clock := newTestSession(t, f)

	var seen []int64
	sub := s.Subscribe(func(b cs.Balance, ok bool) {
		if ok {
			seen = append(seen, b.Remaining)
		}
	})
	defer sub.Close()

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.ApplyLocalDeduction(10))
	clock.Advance(time.Second)

	assert.Equal(t, []int64{50, 40, 50}, seen)
}

func TestSession_ConfirmFeatureUsesCostTable(t *testing.T) {
	cfg := cs.DefaultConfig()
	cfg.Costs = cs.CostTable{"rank_check": 2}
	c := &scriptedConfirmer{answer: cs.Answer{Confirmed: true}}
	s, _, _ := loadedSession(t, 10, cs.WithConfig(cfg), cs.WithConfirmer(c))

	d, err := s.ConfirmFeature(context.Background(), "rank_check", 5)
	require.NoError(t, err)
	assert.Equal(t, cs.DecisionProceed, d)
	assert.Equal(t, int64(10), c.quotes[0].Cost)

	d, err = s.ConfirmFeature(context.Background(), "rank_check", 6)
	require.NoError(t, err)
	assert.Equal(t, cs.DecisionInsufficient, d)

	_, err = s.ConfirmFeature(context.Background(), "unknown", 1)
	assert.Error(t, err)
}

func TestSession_HandleError(t *testing.T) {
	var got cs.Classification
	p := cs.UpgradePrompterFunc(func(c cs.Classification) { got = c })
	s, _ := newTestSession(t, mock.New(), cs.WithUpgradePrompter(p))

	wrapped := fmt.Errorf("add keyword: %w", &cs.StatusError{
		StatusCode: http.StatusForbidden,
		Message:    "키워드는 최대 10개까지 등록할 수 있습니다. (현재: 10개)",
	})
	assert.True(t, s.HandleError(wrapped))
	assert.Equal(t, cs.LimitKeyword, got.Kind)

	assert.False(t, s.HandleError(errors.New("plain error")))
	assert.False(t, s.HandleError(&cs.StatusError{StatusCode: http.StatusForbidden, Message: "you cannot restore this review"}))
	assert.False(t, s.HandleError(&cs.StatusError{StatusCode: http.StatusInternalServerError, Message: "plan"}))
}

func TestSession_CloseClearsAndStops(t *testing.T) {
	f := mock.New(mock.WithBalance(cs.Balance{Remaining: 100, Tier: cs.TierFree}))
	s, clock := newTestSession(t, f)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	lastOK := true
	s.Subscribe(func(_ cs.Balance, ok bool) { lastOK = ok })

	require.NoError(t, s.ApplyLocalDeduction(1))
	s.Close()
	s.Close()

	assert.False(t, lastOK)
	_, ok := s.Read()
	assert.False(t, ok)

	clock.Advance(time.Hour)
	assert.Equal(t, int64(1), f.CallCount())

	assert.ErrorIs(t, s.ApplyLocalDeduction(1), cs.ErrClosed)
	_, err = s.ForceReconciliation(context.Background())
	assert.ErrorIs(t, err, cs.ErrClosed)
	_, err = s.ConfirmSpend(context.Background(), 1, "x")
	assert.ErrorIs(t, err, cs.ErrClosed)
	_, err = s.Spend(context.Background(), 1, "x", nil)
	assert.ErrorIs(t, err, cs.ErrClosed)
	assert.False(t, s.HandleError(&cs.StatusError{StatusCode: http.StatusForbidden, Message: "plan"}))
}
