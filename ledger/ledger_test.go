package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const owner ledger.OwnerID = "owner-1"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	require.NoError(t, repo.CreateWallet(context.Background(), ledger.Wallet{
		ID: "w-bca", OwnerID: owner, Name: "BCA", Type: ledger.WalletBankAccount, Active: true,
	}))
	return ledger.NewLedger(repo, ledger.NewBalanceCache(time.Minute, 100)), repo
}

func income(amount string, wallet ledger.WalletID) ledger.Transaction {
	return ledger.Transaction{OwnerID: owner, Type: ledger.TxIncome, Amount: dec(amount), WalletID: wallet, Source: "Salary"}
}

func expense(amount string, wallet ledger.WalletID) ledger.Transaction {
	return ledger.Transaction{OwnerID: owner, Type: ledger.TxExpense, Amount: dec(amount), WalletID: wallet, Category: "Food"}
}

// =============================================================================
// SIGN POLICY
// =============================================================================

func TestWalletEffect(t *testing.T) {
	tests := []struct {
		name string
		tx   ledger.Transaction
		want string
	}{
		{"income adds", income("100", "w"), "100"},
		{"expense subtracts", expense("40", "w"), "-40"},
		{"outgoing transfer leg", ledger.Transaction{Type: ledger.TxTransfer, Amount: dec("-25"), WalletID: "w"}, "-25"},
		{"incoming transfer leg", ledger.Transaction{Type: ledger.TxTransfer, Amount: dec("25"), WalletID: "w"}, "25"},
		{"savings deposit leaves wallet", ledger.Transaction{Type: ledger.TxSavings, Amount: dec("30"), WalletID: "w"}, "-30"},
		{"savings withdrawal leg has no wallet", ledger.Transaction{Type: ledger.TxSavings, Amount: dec("-30")}, "0"},
		{"investment never moves wallet", ledger.Transaction{Type: ledger.TxInvestment, Amount: dec("500"), WalletID: "w"}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, dec(tt.want).Equal(ledger.WalletEffect(tt.tx)), "got %s", ledger.WalletEffect(tt.tx))
		})
	}
}

// =============================================================================
// LEDGER WRITES
// =============================================================================

func TestAppend_AssignsIDAndDefaults(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.Append(ctx, income("100", "w-bca"))
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())
	assert.False(t, tx.Date.IsZero())
}

func TestAppend_RejectsInvalidRows(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, income("0", "w-bca"))
	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)
	assert.True(t, ledger.IsClientError(err))

	_, err = l.Append(ctx, ledger.Transaction{OwnerID: owner, Type: "gift", Amount: dec("1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAppend_InvalidatesCachedBalance(t *testing.T) {
	// GIVEN: a cached balance
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Append(ctx, income("100", "w-bca"))
	require.NoError(t, err)

	bal, err := l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(bal))

	// WHEN: another write lands within the TTL
	_, err = l.Append(ctx, expense("30", "w-bca"))
	require.NoError(t, err)

	// THEN: the next read reflects it
	bal, err = l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)
	assert.True(t, dec("70").Equal(bal), "got %s", bal)
}

func TestCachedBalanceMatchesCold(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, tx := range []ledger.Transaction{
		income("1000", "w-bca"),
		expense("125.50", "w-bca"),
		{OwnerID: owner, Type: ledger.TxTransfer, Amount: dec("-200"), WalletID: "w-bca", TransferKind: ledger.KindWalletToWallet},
		{OwnerID: owner, Type: ledger.TxSavings, Amount: dec("100"), WalletID: "w-bca", TransferKind: ledger.KindWalletToSavings},
	} {
		_, err := l.Append(ctx, tx)
		require.NoError(t, err)
	}

	cached, err := l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)
	cold, err := l.Balances.Recompute(ctx, owner, "w-bca")
	require.NoError(t, err)

	assert.True(t, cold.Equal(cached))
	assert.True(t, dec("574.50").Equal(cold), "got %s", cold)
}

func TestAppendBatch_IsAtomic(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AppendBatch(ctx, []ledger.Transaction{income("10", "w-bca"), income("-1", "w-bca")})
	require.Error(t, err)

	txs, err := l.ListByOwner(ctx, owner, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, txs, "nothing persisted when one row is invalid")
}

func TestListByOwner_OrdersByDateThenCreated(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	a := income("1", "w-bca")
	a.Date, a.Description = d1, "a"
	b := income("2", "w-bca")
	b.Date, b.Description = d2, "b"
	b.CreatedAt = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	c := income("3", "w-bca")
	c.Date, c.Description = d2, "c"
	c.CreatedAt = time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	for _, tx := range []ledger.Transaction{a, b, c} {
		_, err := l.Append(ctx, tx)
		require.NoError(t, err)
	}

	txs, err := l.ListByOwner(ctx, owner, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{txs[0].Description, txs[1].Description, txs[2].Description})

	page, err := l.ListByOwner(ctx, owner, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Description)
}

func TestUpdate_OnlyPatchableFields(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.Append(ctx, expense("50", "w-bca"))
	require.NoError(t, err)

	amount := dec("20")
	desc := "lunch"
	updated, err := l.Update(ctx, owner, tx.ID, ledger.TransactionPatch{Amount: &amount, Description: &desc})
	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.Amount))
	assert.Equal(t, "lunch", updated.Description)
	assert.Equal(t, ledger.WalletID("w-bca"), updated.WalletID)

	bal, err := l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)
	assert.True(t, dec("-20").Equal(bal))
}

func TestUpdate_NotFoundForOtherOwner(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.Append(ctx, expense("50", "w-bca"))
	require.NoError(t, err)

	desc := "x"
	_, err = l.Update(ctx, "someone-else", tx.ID, ledger.TransactionPatch{Description: &desc})
	assert.True(t, ledger.IsNotFound(err))

	_, err = l.Update(ctx, owner, tx.ID, ledger.TransactionPatch{})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestDelete_RestoresBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, income("100", "w-bca"))
	require.NoError(t, err)
	before, err := l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)

	tx, err := l.Append(ctx, expense("35", "w-bca"))
	require.NoError(t, err)
	ok, err := l.Delete(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)
	assert.True(t, before.Equal(after))

	ok, err = l.Delete(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := l.WithTx(ctx, owner, func(repo ledger.Repository) error {
		if _, err := l.AppendIn(ctx, repo, income("10", "w-bca")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bal, err := l.Balances.WalletBalance(ctx, owner, "w-bca")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestSavingsTotals(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for _, tx := range []ledger.Transaction{
		{OwnerID: owner, Type: ledger.TxSavings, Amount: dec("300"), WalletID: "w-bca", GoalID: "g-1", TransferKind: ledger.KindWalletToSavings},
		{OwnerID: owner, Type: ledger.TxSavings, Amount: dec("200"), WalletID: "w-bca", TransferKind: ledger.KindWalletToSavings},
		{OwnerID: owner, Type: ledger.TxSavings, Amount: dec("-50"), GoalID: "g-1", TransferKind: ledger.KindSavingsToWallet},
	} {
		_, err := l.Append(ctx, tx)
		require.NoError(t, err)
	}

	total, err := l.Balances.TotalSavings(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("450").Equal(total))

	current, err := l.Balances.GoalCurrentAmount(ctx, owner, "g-1")
	require.NoError(t, err)
	assert.True(t, dec("250").Equal(current))
}

// =============================================================================
// WALLETS
// =============================================================================

func TestCreateWallet_AssignsIDAndRejectsDuplicateName(t *testing.T) {
	// GIVEN: An owner who already has a wallet named BCA
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// WHEN: A new wallet is created
	w, err := l.CreateWallet(ctx, ledger.Wallet{OwnerID: owner, Name: " GoPay ", Type: ledger.WalletEWallet, Active: true})

	// THEN: It gets an id and a trimmed name
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "GoPay", w.Name)
	assert.False(t, w.CreatedAt.IsZero())

	// AND: A second BCA is rejected regardless of case
	_, err = l.CreateWallet(ctx, ledger.Wallet{OwnerID: owner, Name: "bca", Type: ledger.WalletCash, Active: true})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	wallets, err := l.ListWallets(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, wallets, 2)
}

func TestSetWalletActive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	w, err := l.SetWalletActive(ctx, owner, "w-bca", false)
	require.NoError(t, err)
	assert.False(t, w.Active)

	got, err := l.GetWallet(ctx, owner, "w-bca")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = l.SetWalletActive(ctx, "owner-2", "w-bca", true)
	assert.True(t, ledger.IsNotFound(err), "other owners cannot touch the wallet")
}

func TestCreateWallet_RejectsUnknownType(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.CreateWallet(context.Background(), ledger.Wallet{OwnerID: owner, Name: "Vault", Type: "safe"})
	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "type", verr.Field)
}
