package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

const owner ledger.OwnerID = "owner-1"

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedWallet(t *testing.T, store *sqlite.Store, id ledger.WalletID, name string) {
	t.Helper()
	require.NoError(t, store.CreateWallet(context.Background(), ledger.Wallet{
		ID: id, OwnerID: owner, Name: name, Type: ledger.WalletBankAccount, Active: true,
		CreatedAt: time.Now(),
	}))
}

func TestStore_TransactionRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedWallet(t, store, "w-1", "BCA")

	l := ledger.NewLedger(store, nil)
	in, err := l.Append(ctx, ledger.Transaction{
		OwnerID: owner, Type: ledger.TxSavings, Amount: dec("150.25"), WalletID: "w-1",
		GoalID: "g-1", GoalName: "Laptop", TransferKind: ledger.KindWalletToSavings,
		Date: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out, err := store.GetTransaction(ctx, owner, in.ID)
	require.NoError(t, err)
	assert.True(t, dec("150.25").Equal(out.Amount))
	assert.Equal(t, ledger.WalletID("w-1"), out.WalletID)
	assert.Equal(t, ledger.GoalID("g-1"), out.GoalID)
	assert.Equal(t, ledger.KindWalletToSavings, out.TransferKind)
	assert.Equal(t, "2025-04-02", out.Date.Format("2006-01-02"))

	_, err = store.GetTransaction(ctx, "other-owner", in.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_WalletBalanceThroughLedger(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedWallet(t, store, "w-1", "BCA")
	l := ledger.NewLedger(store, ledger.NewBalanceCache(time.Minute, 0))

	for _, tx := range []ledger.Transaction{
		{OwnerID: owner, Type: ledger.TxIncome, Amount: dec("1000"), WalletID: "w-1"},
		{OwnerID: owner, Type: ledger.TxExpense, Amount: dec("250"), WalletID: "w-1"},
		{OwnerID: owner, Type: ledger.TxInvestment, Amount: dec("999"), AssetName: "BBCA"},
	} {
		_, err := l.Append(ctx, tx)
		require.NoError(t, err)
	}

	bal, err := l.Balances.WalletBalance(ctx, owner, "w-1")
	require.NoError(t, err)
	assert.True(t, dec("750").Equal(bal), "got %s", bal)
}

func TestStore_WithTxReadsInsideTransaction(t *testing.T) {
	// GIVEN: an in-memory database pinned to one connection
	store := newStore(t)
	ctx := context.Background()
	seedWallet(t, store, "w-1", "BCA")
	l := ledger.NewLedger(store, nil)

	// WHEN: a scope writes then reads through the same repository
	err := l.WithTx(ctx, owner, func(repo ledger.Repository) error {
		if _, err := l.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID: owner, Type: ledger.TxIncome, Amount: dec("40"), WalletID: "w-1",
		}); err != nil {
			return err
		}
		bal, err := ledger.NewBalanceCalculator(repo, nil).Recompute(ctx, owner, "w-1")
		if err != nil {
			return err
		}
		// THEN: the uncommitted row is visible and nothing deadlocks
		assert.True(t, dec("40").Equal(bal))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_WithTxRollback(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedWallet(t, store, "w-1", "BCA")
	l := ledger.NewLedger(store, nil)
	boom := errors.New("boom")

	err := l.WithTx(ctx, owner, func(repo ledger.Repository) error {
		if _, err := l.AppendIn(ctx, repo, ledger.Transaction{
			OwnerID: owner, Type: ledger.TxIncome, Amount: dec("40"), WalletID: "w-1",
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	txs, err := store.ListByOwner(ctx, owner, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedWallet(t, store, "w-1", "BCA")
	l := ledger.NewLedger(store, nil)

	tx, err := l.Append(ctx, ledger.Transaction{OwnerID: owner, Type: ledger.TxExpense, Amount: dec("12"), WalletID: "w-1", Category: "Food"})
	require.NoError(t, err)

	cat := "Transport"
	updated, err := l.Update(ctx, owner, tx.ID, ledger.TransactionPatch{Category: &cat})
	require.NoError(t, err)
	assert.Equal(t, "Transport", updated.Category)

	ok, err := l.Delete(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.GetTransaction(ctx, owner, tx.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_DuplicateWalletName(t *testing.T) {
	store := newStore(t)
	seedWallet(t, store, "w-1", "BCA")

	err := store.CreateWallet(context.Background(), ledger.Wallet{
		ID: "w-2", OwnerID: owner, Name: "BCA", Type: ledger.WalletCash, Active: true, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestStore_SetWalletActive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedWallet(t, store, "w-1", "BCA")

	require.NoError(t, store.SetWalletActive(ctx, owner, "w-1", false))
	w, err := store.GetWallet(ctx, owner, "w-1")
	require.NoError(t, err)
	assert.False(t, w.Active)

	err = store.SetWalletActive(ctx, owner, "w-404", true)
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_GoalAllocation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	target := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateGoal(ctx, ledger.SavingsGoal{
		ID: "g-1", OwnerID: owner, Name: "Laptop", TargetAmount: dec("1000"),
		AllocatedAmount: decimal.Zero, TargetDate: &target, CreatedAt: time.Now(),
	}))
	require.NoError(t, store.SetGoalAllocation(ctx, owner, "g-1", dec("300")))

	g, err := store.GetGoal(ctx, owner, "g-1")
	require.NoError(t, err)
	assert.True(t, dec("300").Equal(g.AllocatedAmount))
	require.NotNil(t, g.TargetDate)
	assert.True(t, target.Equal(*g.TargetDate))

	err = store.SetGoalAllocation(ctx, owner, "missing", dec("1"))
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_CorruptGoalAmountIsAnError(t *testing.T) {
	// GIVEN: a goal whose stored allocation is not a number
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateGoal(ctx, ledger.SavingsGoal{
		ID: "g-1", OwnerID: owner, Name: "Laptop", TargetAmount: dec("1000"),
		AllocatedAmount: decimal.Zero, CreatedAt: time.Now(),
	}))
	require.NoError(t, store.ExecRaw(`UPDATE savings_goals SET allocated_amount = 'garbage' WHERE id = 'g-1'`))

	// WHEN / THEN: reads fail instead of reporting zero
	_, err := store.GetGoal(ctx, owner, "g-1")
	assert.ErrorContains(t, err, "bad allocated amount")
	_, err = store.ListGoals(ctx, owner)
	assert.Error(t, err)
}

func TestPendingStore_Expiry(t *testing.T) {
	store := newStore(t)
	pending := store.Pending()
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, pending.SavePending(ctx, confirm.Pending{
		Token: "tok-1", OwnerID: owner, ChannelID: "chat-9",
		Proposal:  confirm.Proposal{Action: confirm.ActionExpense, Amount: dec("25"), WalletID: "w-1", Confidence: 0.9},
		CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	got, ok, err := pending.GetPending(ctx, "tok-1", now.Add(30*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chat-9", got.ChannelID)
	assert.True(t, dec("25").Equal(got.Proposal.Amount))

	_, ok, err = pending.GetPending(ctx, "tok-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are not returned")

	n, err := pending.PurgeExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPendingStore_Batch(t *testing.T) {
	store := newStore(t)
	pending := store.Pending()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, pending.SaveBatch(ctx, confirm.Batch{
		ID: "b-1", OwnerID: owner, Tokens: []string{"a", "b"}, CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	b, ok, err := pending.GetBatch(ctx, "b-1", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, b.Tokens)

	require.NoError(t, pending.DeleteBatch(ctx, "b-1"))
	_, ok, err = pending.GetBatch(ctx, "b-1", now)
	require.NoError(t, err)
	assert.False(t, ok)
}
