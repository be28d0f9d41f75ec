package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/arena-escrow/internal/model"
)

var errAbort = errors.New("abort")

func backends(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := OpenBoltStore(filepath.Join(t.TempDir(), "escrow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bs,
	}
}

func openPool(id uint64) *model.Pool {
	return &model.Pool{Authority: "creator", MatchID: id, Status: model.StatusOpenForBetting, Deadline: 10}
}

func TestStore_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := st.Update(ctx, func(tx Tx) error {
				if err := tx.PutRegistry(&model.Registry{Authority: "root", NextMatchID: 2}); err != nil {
					return err
				}
				if err := tx.CreatePool(openPool(1)); err != nil {
					return err
				}
				// Reads observe the unit's own writes.
				p, err := tx.Pool(1)
				if err != nil {
					return err
				}
				assert.Equal(t, "creator", p.Authority)
				return nil
			})
			require.NoError(t, err)

			reg, err := st.Registry(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), reg.NextMatchID)

			p, err := st.Pool(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, model.StatusOpenForBetting, p.Status)

			_, err = st.Pool(ctx, 2)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				return tx.Credit("alice", 100)
			}))

			err := st.Update(ctx, func(tx Tx) error {
				if err := tx.CreatePool(openPool(1)); err != nil {
					return err
				}
				if err := tx.OpenCustody("custody-1", "authority-1"); err != nil {
					return err
				}
				if err := tx.Transfer("alice", "custody-1", 60, "alice"); err != nil {
					return err
				}
				return errAbort
			})
			require.ErrorIs(t, err, errAbort)

			_, err = st.Pool(ctx, 1)
			assert.ErrorIs(t, err, ErrNotFound)
			bal, err := st.Balance(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, uint64(100), bal)
			bal, err = st.Balance(ctx, "custody-1")
			require.NoError(t, err)
			assert.Zero(t, bal)
		})
	}
}

func TestStore_CreateIsExclusive(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := &model.Receipt{Participant: "alice", MatchID: 1, Prediction: model.OutcomeA, Stake: 5}
			require.NoError(t, st.Update(ctx, func(tx Tx) error { return tx.CreateReceipt(r) }))

			err := st.Update(ctx, func(tx Tx) error { return tx.CreateReceipt(r) })
			assert.ErrorIs(t, err, ErrExists)

			err = st.Update(ctx, func(tx Tx) error {
				return tx.CreateResolution(&model.Resolution{MatchID: 1, MoveA: model.MoveRock, MoveB: model.MoveRock, Winner: model.WinnerDraw})
			})
			require.NoError(t, err)
			err = st.Update(ctx, func(tx Tx) error {
				return tx.CreateResolution(&model.Resolution{MatchID: 1, MoveA: model.MovePaper, MoveB: model.MoveRock, Winner: model.WinnerA})
			})
			assert.ErrorIs(t, err, ErrExists)

			err = st.Update(ctx, func(tx Tx) error {
				return tx.PutPool(openPool(42))
			})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_TransferAuthorization(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				if err := tx.Credit("alice", 100); err != nil {
					return err
				}
				if err := tx.OpenCustody("custody", "authority"); err != nil {
					return err
				}
				return tx.Transfer("alice", "custody", 40, "alice")
			}))

			transfer := func(from, to string, amount uint64, signer string) error {
				return st.Update(ctx, func(tx Tx) error { return tx.Transfer(from, to, amount, signer) })
			}

			assert.ErrorIs(t, transfer("alice", "bob", 10, "bob"), ErrUnauthorizedTransfer)
			assert.ErrorIs(t, transfer("custody", "alice", 10, "alice"), ErrUnauthorizedTransfer)
			assert.ErrorIs(t, transfer("custody", "alice", 10, "custody"), ErrUnauthorizedTransfer)
			assert.ErrorIs(t, transfer("custody", "alice", 41, "authority"), ErrInsufficientFunds)
			assert.ErrorIs(t, transfer("alice", "alice", 1, "alice"), ErrInvalidTransfer)
			assert.ErrorIs(t, transfer("alice", "bob", 0, "alice"), ErrInvalidTransfer)
			require.NoError(t, transfer("custody", "alice", 15, "authority"))

			err := st.Update(ctx, func(tx Tx) error { return tx.Credit("custody", 1) })
			assert.ErrorIs(t, err, ErrCustodyAccount)

			bal, err := st.Balance(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, uint64(75), bal)
			bal, err = st.Balance(ctx, "custody")
			require.NoError(t, err)
			assert.Equal(t, uint64(25), bal)
		})
	}
}

func TestStore_Listings(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				for _, id := range []uint64{3, 1, 2} {
					if err := tx.CreatePool(openPool(id)); err != nil {
						return err
					}
				}
				for _, r := range []model.Receipt{
					{Participant: "carol", MatchID: 1, Prediction: model.OutcomeA, Stake: 1},
					{Participant: "alice", MatchID: 1, Prediction: model.OutcomeB, Stake: 2},
					{Participant: "alice", MatchID: 2, Prediction: model.OutcomeA, Stake: 3},
				} {
					if err := tx.CreateReceipt(&r); err != nil {
						return err
					}
				}
				return nil
			}))

			pools, err := st.ListPools(ctx)
			require.NoError(t, err)
			require.Len(t, pools, 3)
			assert.Equal(t, []uint64{1, 2, 3}, []uint64{pools[0].MatchID, pools[1].MatchID, pools[2].MatchID})

			receipts, err := st.ListReceipts(ctx, 1)
			require.NoError(t, err)
			require.Len(t, receipts, 2)
			assert.Equal(t, "alice", receipts[0].Participant)
			assert.Equal(t, "carol", receipts[1].Participant)
		})
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "escrow.db")

	bs, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, bs.Update(ctx, func(tx Tx) error { return tx.CreatePool(openPool(9)) }))
	require.NoError(t, bs.Close())

	bs, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer bs.Close()

	p, err := bs.Pool(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), p.MatchID)
}

func TestStore_OpenCustodyAdoptsFundedAddress(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Update(ctx, func(tx Tx) error { return tx.Credit("future-pool", 7) }))
			require.NoError(t, st.Update(ctx, func(tx Tx) error { return tx.OpenCustody("future-pool", "authority") }))

			err := st.Update(ctx, func(tx Tx) error { return tx.OpenCustody("future-pool", "other") })
			assert.ErrorIs(t, err, ErrExists)

			err = st.Update(ctx, func(tx Tx) error { return tx.Transfer("future-pool", "alice", 7, "other") })
			assert.ErrorIs(t, err, ErrUnauthorizedTransfer)
			require.NoError(t, st.Update(ctx, func(tx Tx) error { return tx.Transfer("future-pool", "alice", 7, "authority") }))
		})
	}
}
