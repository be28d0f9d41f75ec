package escrow

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/events"
	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/slot"
	"github.com/atmx/arena-escrow/internal/store"
)

const (
	rock     uint8 = 0
	paper    uint8 = 1
	scissors uint8 = 2

	predictA uint8 = 0
	predictB uint8 = 1
)

type fixture struct {
	ctx   context.Context
	eng   *Engine
	st    store.Store
	slots *slot.Fixed
	rec   *events.Recorder
	clock *quartz.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		st:    store.NewMemoryStore(),
		slots: slot.NewFixed(100),
		rec:   &events.Recorder{},
		clock: quartz.NewMock(t),
	}
	f.eng = New(f.st, f.slots, f.rec, zap.NewNop(), WithClock(f.clock))
	_, err := f.eng.InitializeRegistry(f.ctx, "root")
	require.NoError(t, err)
	return f
}

func (f *fixture) fund(t *testing.T, balances map[string]uint64) {
	t.Helper()
	for who, amount := range balances {
		_, err := f.eng.Deposit(f.ctx, "root", who, amount)
		require.NoError(t, err)
	}
}

func (f *fixture) match(t *testing.T, threshold, duration uint64) uint64 {
	t.Helper()
	p, err := f.eng.CreateMatch(f.ctx, "creator", threshold, duration)
	require.NoError(t, err)
	return p.MatchID
}

func (f *fixture) bet(t *testing.T, who string, id, amount uint64, prediction uint8) {
	t.Helper()
	_, err := f.eng.PlaceBet(f.ctx, who, id, amount, prediction)
	require.NoError(t, err)
}

// settle closes betting and resolves the match with the given moves.
func (f *fixture) settle(t *testing.T, id uint64, moveA, moveB uint8) *model.Resolution {
	t.Helper()
	p, err := f.eng.Pool(f.ctx, id)
	require.NoError(t, err)
	f.slots.Set(p.Deadline)
	p, err = f.eng.CheckDeadline(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusAwaitingResolution, p.Status)
	res, err := f.eng.ResolveMatch(f.ctx, "creator", id, moveA, moveB)
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := f.eng.Balance(f.ctx, account)
	require.NoError(t, err)
	return b
}

func (f *fixture) claim(t *testing.T, who string, id uint64) uint64 {
	t.Helper()
	r, err := f.eng.Claim(f.ctx, who, id)
	require.NoError(t, err)
	require.True(t, r.Claimed)
	return r.Payout
}

func TestInitializeRegistry(t *testing.T) {
	ctx := context.Background()
	eng := New(store.NewMemoryStore(), slot.NewFixed(0), nil, nil)

	_, err := eng.CreateMatch(ctx, "creator", 0, 10)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = eng.Registry(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = eng.InitializeRegistry(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	reg, err := eng.InitializeRegistry(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, model.Registry{Authority: "root", NextMatchID: 1}, *reg)

	_, err = eng.InitializeRegistry(ctx, "someone-else")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	reg, err = eng.Registry(ctx)
	require.NoError(t, err)
	assert.Equal(t, "root", reg.Authority)
}

func TestCreateMatch(t *testing.T) {
	f := newFixture(t)

	p1, err := f.eng.CreateMatch(f.ctx, "creator", 50, 10)
	require.NoError(t, err)
	p2, err := f.eng.CreateMatch(f.ctx, "other", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, model.Pool{
		Authority:         "creator",
		MatchID:           1,
		Status:            model.StatusOpenForBetting,
		Deadline:          110,
		MinStakeThreshold: 50,
		CreatedSlot:       100,
	}, *p1)
	assert.Equal(t, uint64(2), p2.MatchID)
	assert.Equal(t, uint64(100), p2.Deadline)

	reg, err := f.eng.Registry(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reg.NextMatchID)
	assert.Equal(t, uint64(0), reg.TotalMatches)

	assert.Equal(t, []string{events.TypeMatchCreated, events.TypeMatchCreated}, f.rec.Types())
}

func TestCreateMatch_DeadlineOverflowRollsBack(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.CreateMatch(f.ctx, "creator", 0, math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, KindArithmetic, KindOf(err))

	reg, err := f.eng.Registry(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.NextMatchID)

	pools, err := f.eng.Pools(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestPlaceBet(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 500, "bob": 500})
	id := f.match(t, 0, 10)

	r, err := f.eng.PlaceBet(f.ctx, "alice", id, 300, predictA)
	require.NoError(t, err)
	assert.Equal(t, model.Receipt{Participant: "alice", MatchID: id, Prediction: model.OutcomeA, Stake: 300}, *r)
	f.bet(t, "bob", id, 100, predictB)

	p, err := f.eng.Pool(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), p.StakeA)
	assert.Equal(t, uint64(100), p.StakeB)

	assert.Equal(t, uint64(200), f.balance(t, "alice"))
	assert.Equal(t, uint64(400), f.balance(t, "bob"))
	assert.Equal(t, uint64(400), f.balance(t, CustodyAccount(id)))

	_, err = f.eng.PlaceBet(f.ctx, "alice", id, 10, predictB)
	assert.ErrorIs(t, err, ErrDuplicateReceipt)

	receipts, err := f.eng.Receipts(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, receipts, 2)
}

func TestPlaceBet_Rejections(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100})
	id := f.match(t, 0, 10)

	tests := []struct {
		name       string
		who        string
		match      uint64
		amount     uint64
		prediction uint8
		want       error
		kind       Kind
	}{
		{"zero amount", "alice", id, 0, predictA, ErrZeroAmount, KindValidation},
		{"outcome out of range", "alice", id, 10, 2, ErrInvalidOutcome, KindValidation},
		{"outcome far out of range", "alice", id, 10, 255, ErrInvalidOutcome, KindValidation},
		{"missing participant", "", id, 10, predictA, ErrInvalidIdentity, KindValidation},
		{"unknown match", "alice", 99, 10, predictA, ErrNotFound, KindNotFound},
		{"insufficient funds", "alice", id, 101, predictA, ErrTransferFailed, KindState},
		{"unfunded participant", "mallory", id, 1, predictB, ErrTransferFailed, KindState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.PlaceBet(f.ctx, tt.who, tt.match, tt.amount, tt.prediction)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	// None of the rejected bets left a trace.
	p, err := f.eng.Pool(f.ctx, id)
	require.NoError(t, err)
	assert.Zero(t, p.StakeA)
	assert.Zero(t, p.StakeB)
	assert.Equal(t, uint64(100), f.balance(t, "alice"))
	assert.Zero(t, f.balance(t, CustodyAccount(id)))
	_, err = f.eng.Receipt(f.ctx, "alice", id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{events.TypeMatchCreated}, f.rec.Types())
}

func TestPlaceBet_StakeOverflowRollsBackTransfer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"a": math.MaxUint64, "b": 10})
	id := f.match(t, 0, 10)
	f.bet(t, "a", id, math.MaxUint64, predictA)

	// Custody overflows before the stake total does.
	_, err := f.eng.PlaceBet(f.ctx, "b", id, 10, predictA)
	assert.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, uint64(10), f.balance(t, "b"))

	p, err := f.eng.Pool(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), p.StakeA)
	_, err = f.eng.Receipt(f.ctx, "b", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeadlineBoundary(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100, "bob": 100})
	id := f.match(t, 0, 10) // deadline 110

	f.slots.Set(109)
	f.bet(t, "alice", id, 10, predictA)
	_, err := f.eng.CheckDeadline(f.ctx, id)
	assert.ErrorIs(t, err, ErrDeadlineNotReached)

	f.slots.Set(110)
	_, err = f.eng.PlaceBet(f.ctx, "bob", id, 10, predictB)
	assert.ErrorIs(t, err, ErrDeadlinePassed)

	p, err := f.eng.CheckDeadline(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingResolution, p.Status)
}

func TestMonotonicLifecycle(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100, "bob": 100})
	id := f.match(t, 10, 5)
	f.bet(t, "alice", id, 10, predictA)

	f.slots.Advance(5)
	_, err := f.eng.CheckDeadline(f.ctx, id)
	require.NoError(t, err)

	_, err = f.eng.CheckDeadline(f.ctx, id)
	assert.ErrorIs(t, err, ErrNotOpen)

	// Rewinding is impossible and moving the slot does not reopen betting.
	f.slots.Set(0)
	_, err = f.eng.PlaceBet(f.ctx, "bob", id, 10, predictB)
	assert.ErrorIs(t, err, ErrBettingClosed)

	_, err = f.eng.ResolveMatch(f.ctx, "creator", id, rock, rock)
	require.NoError(t, err)

	_, err = f.eng.ResolveMatch(f.ctx, "creator", id, paper, rock)
	assert.ErrorIs(t, err, ErrWrongStatus)
	_, err = f.eng.CheckDeadline(f.ctx, id)
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = f.eng.PlaceBet(f.ctx, "bob", id, 10, predictB)
	assert.ErrorIs(t, err, ErrBettingClosed)

	reg, err := f.eng.Registry(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.TotalMatches)
}

func TestResolveMatch(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 300, "bob": 100})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 300, predictA)
	f.bet(t, "bob", id, 100, predictB)

	_, err := f.eng.ResolveMatch(f.ctx, "creator", id, rock, scissors)
	assert.ErrorIs(t, err, ErrWrongStatus, "resolve while open")

	f.slots.Advance(10)
	_, err = f.eng.CheckDeadline(f.ctx, id)
	require.NoError(t, err)

	_, err = f.eng.ResolveMatch(f.ctx, "alice", id, rock, scissors)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindAuthorization, KindOf(err))

	_, err = f.eng.ResolveMatch(f.ctx, "creator", id, 3, rock)
	assert.ErrorIs(t, err, ErrInvalidMove)
	_, err = f.eng.ResolveMatch(f.ctx, "creator", id, rock, 9)
	assert.ErrorIs(t, err, ErrInvalidMove)

	f.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	res, err := f.eng.ResolveMatch(f.ctx, "creator", id, rock, scissors)
	require.NoError(t, err)
	assert.Equal(t, model.Resolution{
		MatchID:    id,
		ResolvedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		MoveA:      model.MoveRock,
		MoveB:      model.MoveScissors,
		Winner:     model.WinnerA,
		TotalStake: 400,
	}, *res)

	stored, err := f.eng.Resolution(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.Winner, stored.Winner)
	assert.True(t, res.ResolvedAt.Equal(stored.ResolvedAt))

	p, err := f.eng.Pool(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSettled, p.Status)
}

func TestClaim_PayoutFormula(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 1000, "carol": 1000, "bob": 1000})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 100, predictA)
	f.bet(t, "carol", id, 200, predictA)
	f.bet(t, "bob", id, 100, predictB)
	f.settle(t, id, paper, rock)

	assert.Equal(t, uint64(133), f.claim(t, "alice", id))
	assert.Equal(t, uint64(266), f.claim(t, "carol", id))
	assert.Equal(t, uint64(0), f.claim(t, "bob", id))

	assert.Equal(t, uint64(1033), f.balance(t, "alice"))
	assert.Equal(t, uint64(1066), f.balance(t, "carol"))
	assert.Equal(t, uint64(900), f.balance(t, "bob"))
	// Floor division leaves the remainder in custody; nothing is overpaid.
	assert.Equal(t, uint64(1), f.balance(t, CustodyAccount(id)))
}

func TestClaim_Conservation(t *testing.T) {
	f := newFixture(t)
	stakes := []struct {
		who        string
		amount     uint64
		prediction uint8
	}{
		{"p1", 100, predictA},
		{"p2", 200, predictA},
		{"p3", 120, predictB},
		{"p4", 180, predictB},
	}
	for _, s := range stakes {
		f.fund(t, map[string]uint64{s.who: s.amount})
	}
	id := f.match(t, 0, 10)
	for _, s := range stakes {
		f.bet(t, s.who, id, s.amount, s.prediction)
	}
	res := f.settle(t, id, scissors, paper)
	require.Equal(t, model.WinnerA, res.Winner)

	var paid uint64
	for _, s := range stakes {
		paid += f.claim(t, s.who, id)
	}
	assert.Equal(t, res.TotalStake, paid)
	assert.Zero(t, f.balance(t, CustodyAccount(id)))
	assert.Equal(t, uint64(200), f.balance(t, "p1"))
	assert.Equal(t, uint64(400), f.balance(t, "p2"))
}

func TestClaim_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100, "bob": 100})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 100, predictA)
	f.bet(t, "bob", id, 100, predictB)
	f.settle(t, id, rock, scissors)

	assert.Equal(t, uint64(200), f.claim(t, "alice", id))

	_, err := f.eng.Claim(f.ctx, "alice", id)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, uint64(200), f.balance(t, "alice"))
	assert.Zero(t, f.balance(t, CustodyAccount(id)))

	// A losing receipt is also claimable exactly once.
	assert.Zero(t, f.claim(t, "bob", id))
	_, err = f.eng.Claim(f.ctx, "bob", id)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaim_DrawRefundsEveryone(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 70, "bob": 30, "carol": 45})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 70, predictA)
	f.bet(t, "bob", id, 30, predictB)
	f.bet(t, "carol", id, 45, predictB)
	res := f.settle(t, id, scissors, scissors)
	require.Equal(t, model.WinnerDraw, res.Winner)

	assert.Equal(t, uint64(70), f.claim(t, "alice", id))
	assert.Equal(t, uint64(30), f.claim(t, "bob", id))
	assert.Equal(t, uint64(45), f.claim(t, "carol", id))
	assert.Zero(t, f.balance(t, CustodyAccount(id)))
}

func TestClaim_CancellationRefunds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 40, "bob": 50})
	id := f.match(t, 100, 10)
	f.bet(t, "alice", id, 40, predictA)
	f.bet(t, "bob", id, 50, predictB)

	f.slots.Advance(10)
	p, err := f.eng.CheckDeadline(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelledDueToLowBets, p.Status)

	_, err = f.eng.ResolveMatch(f.ctx, "creator", id, rock, paper)
	assert.ErrorIs(t, err, ErrWrongStatus)

	assert.Equal(t, uint64(40), f.claim(t, "alice", id))
	assert.Equal(t, uint64(50), f.claim(t, "bob", id))
	assert.Equal(t, uint64(40), f.balance(t, "alice"))
	assert.Equal(t, uint64(50), f.balance(t, "bob"))
}

func TestClaim_Rejections(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100, "bob": 100})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 100, predictA)

	_, err := f.eng.Claim(f.ctx, "alice", id)
	assert.ErrorIs(t, err, ErrWrongStatus, "open pool")

	f.slots.Advance(10)
	_, err = f.eng.CheckDeadline(f.ctx, id)
	require.NoError(t, err)
	_, err = f.eng.Claim(f.ctx, "alice", id)
	assert.ErrorIs(t, err, ErrWrongStatus, "awaiting resolution")

	_, err = f.eng.Claim(f.ctx, "bob", id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.eng.Claim(f.ctx, "", id)
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	r, err := f.eng.Receipt(f.ctx, "alice", id)
	require.NoError(t, err)
	assert.False(t, r.Claimed)
	assert.Equal(t, uint64(100), f.balance(t, CustodyAccount(id)))
}

func TestClaim_WinnerWithoutWinningStakeIsConsistencyError(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 100, predictA)
	f.settle(t, id, rock, scissors)

	// Corrupt the ledger so the winning side records no stake.
	require.NoError(t, f.st.Update(f.ctx, func(tx store.Tx) error {
		p, err := tx.Pool(id)
		if err != nil {
			return err
		}
		p.StakeA = 0
		return tx.PutPool(p)
	}))

	_, err := f.eng.Claim(f.ctx, "alice", id)
	assert.ErrorIs(t, err, ErrNoWinningStake)
	assert.Equal(t, KindConsistency, KindOf(err))
	assert.Equal(t, uint64(100), f.balance(t, CustodyAccount(id)))
}

func TestClaim_TransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100, "bob": 100})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 100, predictA)
	f.bet(t, "bob", id, 100, predictB)
	f.settle(t, id, rock, scissors)

	// Drain custody behind the engine's back.
	require.NoError(t, f.st.Update(f.ctx, func(tx store.Tx) error {
		return tx.Transfer(CustodyAccount(id), "thief", 150, PoolAuthority(id))
	}))

	_, err := f.eng.Claim(f.ctx, "alice", id)
	assert.ErrorIs(t, err, ErrTransferFailed)

	r, err := f.eng.Receipt(f.ctx, "alice", id)
	require.NoError(t, err)
	assert.False(t, r.Claimed)
	assert.Zero(t, r.Payout)
	assert.Equal(t, uint64(50), f.balance(t, CustodyAccount(id)))
	assert.Zero(t, f.balance(t, "alice"))
}

func TestCustodyRequiresPoolAuthority(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 100})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 100, predictA)

	for _, signer := range []string{"alice", "creator", "root", CustodyAccount(id)} {
		err := f.st.Update(f.ctx, func(tx store.Tx) error {
			return tx.Transfer(CustodyAccount(id), "alice", 1, signer)
		})
		assert.ErrorIs(t, err, store.ErrUnauthorizedTransfer, signer)
	}

	_, err := f.eng.Deposit(f.ctx, "root", CustodyAccount(id), 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotEqual(t, CustodyAccount(id), PoolAuthority(id))
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)

	bal, err := f.eng.Deposit(f.ctx, "root", "alice", 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), bal)
	bal, err = f.eng.Deposit(f.ctx, "root", "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)

	_, err = f.eng.Deposit(f.ctx, "root", "alice", 0)
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = f.eng.Deposit(f.ctx, "root", "alice", math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = f.eng.Deposit(f.ctx, "alice", "alice", 1000)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.eng.Deposit(f.ctx, "", "alice", 1000)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Equal(t, uint64(42), f.balance(t, "alice"))
}

func TestDeposit_RequiresRegistry(t *testing.T) {
	eng := New(store.NewMemoryStore(), slot.NewFixed(0), nil, zap.NewNop())
	_, err := eng.Deposit(context.Background(), "root", "alice", 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDeadlineSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "escrow.db")
	mClock := quartz.NewMock(t)
	genesis := mClock.Now()

	open := func() (*Engine, *store.BoltStore) {
		bs, err := store.OpenBoltStore(path)
		require.NoError(t, err)
		slots := slot.NewClock(mClock, genesis, time.Second)
		return New(bs, slots, nil, zap.NewNop(), WithClock(mClock)), bs
	}

	eng, bs := open()
	_, err := eng.InitializeRegistry(ctx, "root")
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, "root", "alice", 100)
	require.NoError(t, err)

	mClock.Advance(50 * time.Second).MustWait(ctx)
	p, err := eng.CreateMatch(ctx, "creator", 0, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(60), p.Deadline)

	mClock.Advance(20 * time.Second).MustWait(ctx)
	_, err = eng.PlaceBet(ctx, "alice", p.MatchID, 5, predictA)
	require.ErrorIs(t, err, ErrDeadlinePassed)
	require.NoError(t, bs.Close())

	eng, bs = open()
	defer bs.Close()

	assert.Equal(t, uint64(70), eng.Slot())
	_, err = eng.PlaceBet(ctx, "alice", p.MatchID, 5, predictA)
	assert.ErrorIs(t, err, ErrDeadlinePassed)

	closed, err := eng.CheckDeadline(ctx, p.MatchID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingResolution, closed.Status)

	bal, err := eng.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
}

func TestExpiredPools(t *testing.T) {
	f := newFixture(t)
	short := f.match(t, 0, 5)
	long := f.match(t, 0, 50)
	closed := f.match(t, 0, 1)

	f.slots.Advance(1)
	_, err := f.eng.CheckDeadline(f.ctx, closed)
	require.NoError(t, err)

	f.slots.Advance(4)
	expired, err := f.eng.ExpiredPools(f.ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, short, expired[0].MatchID)

	open, err := f.eng.Pools(f.ctx, model.StatusOpenForBetting)
	require.NoError(t, err)
	assert.Len(t, open, 2)
	assert.Equal(t, long, open[1].MatchID)
}

func TestLifecycleEvents(t *testing.T) {
	f := newFixture(t)
	f.fund(t, map[string]uint64{"alice": 10})
	id := f.match(t, 0, 10)
	f.bet(t, "alice", id, 10, predictB)
	f.settle(t, id, rock, paper)
	f.claim(t, "alice", id)

	assert.Equal(t, []string{
		events.TypeMatchCreated,
		events.TypeBetPlaced,
		events.TypeDeadlineChecked,
		events.TypeMatchResolved,
		events.TypeClaimed,
	}, f.rec.Types())

	last := f.rec.Events[len(f.rec.Events)-1]
	assert.Equal(t, "alice", last.Participant)
	assert.Equal(t, uint64(10), last.Amount)
	assert.Equal(t, "settled", last.Status)
	assert.Equal(t, "B", f.rec.Events[3].Winner)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrZeroAmount, KindValidation},
		{fmt.Errorf("wrapped: %w", ErrInvalidMove), KindValidation},
		{ErrWrongStatus, KindState},
		{ErrAlreadyClaimed, KindState},
		{ErrUnauthorized, KindAuthorization},
		{ErrOverflow, KindArithmetic},
		{ErrDivisionByZero, KindArithmetic},
		{ErrIDMismatch, KindConsistency},
		{fmt.Errorf("%w: %w", ErrWrongStatus, ErrIDMismatch), KindConsistency},
		{ErrNotFound, KindNotFound},
		{fmt.Errorf("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), tt.err.Error())
	}
}
