package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
	"github.com/warp/ledger-engine/pipeline"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const owner ledger.OwnerID = "owner-1"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	repo *store.Memory
	l    *ledger.Ledger
	svc  *pipeline.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemory()
	for _, w := range []ledger.Wallet{
		{ID: "w-bca", OwnerID: owner, Name: "BCA", Type: ledger.WalletBankAccount, Active: true},
		{ID: "w-gopay", OwnerID: owner, Name: "GoPay", Type: ledger.WalletEWallet, Active: true},
		{ID: "w-old", OwnerID: owner, Name: "Old Card", Type: ledger.WalletBankCard, Active: false},
		{ID: "w-other", OwnerID: "owner-2", Name: "Theirs", Type: ledger.WalletCash, Active: true},
	} {
		require.NoError(t, repo.CreateWallet(ctx, w))
	}
	l := ledger.NewLedger(repo, ledger.NewBalanceCache(time.Minute, 0))
	return &fixture{repo: repo, l: l, svc: pipeline.NewService(l, nil)}
}

func (f *fixture) fund(t *testing.T, wallet ledger.WalletID, amount string) {
	t.Helper()
	_, err := f.svc.CreateIncome(context.Background(), pipeline.IncomeRequest{
		OwnerID: owner, WalletID: wallet, Amount: dec(amount), Source: "Salary",
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, wallet ledger.WalletID) decimal.Decimal {
	t.Helper()
	b, err := f.l.Balances.WalletBalance(context.Background(), owner, wallet)
	require.NoError(t, err)
	return b
}

// =============================================================================
// SINGLE-LEG OPERATIONS
// =============================================================================

func TestCreateExpense_RequiresWallet(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateExpense(context.Background(), pipeline.ExpenseRequest{
		OwnerID: owner, Amount: dec("10"), Category: "Food",
	})

	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "wallet", vErr.Field)
	assert.ElementsMatch(t, []string{"BCA", "GoPay"}, vErr.Hint, "inactive wallets are not offered")
}

func TestCreateExpense_WalletOutsideOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateExpense(context.Background(), pipeline.ExpenseRequest{
		OwnerID: owner, WalletID: "w-other", Amount: dec("10"),
	})
	assert.True(t, ledger.IsNotFound(err))

	_, err = f.svc.CreateIncome(context.Background(), pipeline.IncomeRequest{
		OwnerID: owner, WalletID: "w-old", Amount: dec("10"),
	})
	assert.True(t, ledger.IsNotFound(err), "inactive wallet counts as absent")
}

func TestCreateExpense_InsufficientFunds(t *testing.T) {
	// GIVEN: a wallet holding 50
	f := newFixture(t)
	f.fund(t, "w-bca", "50")

	// WHEN: spending 80
	_, err := f.svc.CreateExpense(context.Background(), pipeline.ExpenseRequest{
		OwnerID: owner, WalletID: "w-bca", Amount: dec("80"),
	})

	// THEN: the error names both numbers and nothing is written
	var fErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &fErr)
	assert.True(t, dec("50").Equal(fErr.Current))
	assert.True(t, dec("80").Equal(fErr.Required))
	assert.True(t, dec("50").Equal(f.balance(t, "w-bca")))
}

func TestCreateExpense_ExactBalanceAllowed(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "50")

	_, err := f.svc.CreateExpense(context.Background(), pipeline.ExpenseRequest{
		OwnerID: owner, WalletID: "w-bca", Amount: dec("50"),
	})
	require.NoError(t, err)
	assert.True(t, f.balance(t, "w-bca").IsZero())
}

func TestCreateExpense_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateExpense(context.Background(), pipeline.ExpenseRequest{
		OwnerID: owner, WalletID: "w-bca", Amount: dec("0"),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRecordInvestment_NoWalletEffect(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "100")

	tx, err := f.svc.RecordInvestment(context.Background(), pipeline.InvestmentRequest{
		OwnerID: owner, Amount: dec("5000"), AssetName: "BBCA",
	})
	require.NoError(t, err)
	assert.False(t, tx.HasWallet())
	assert.True(t, dec("100").Equal(f.balance(t, "w-bca")))
}

func TestUpdateTransaction_AmountHeldToFunds(t *testing.T) {
	// GIVEN: 100 in BCA and a 50 expense
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "w-bca", "100")
	exp, err := f.svc.CreateExpense(ctx, pipeline.ExpenseRequest{OwnerID: owner, WalletID: "w-bca", Amount: dec("50")})
	require.NoError(t, err)

	// WHEN: raising the expense past what the wallet holds
	over := dec("120")
	_, err = f.svc.UpdateTransaction(ctx, owner, exp.ID, ledger.TransactionPatch{Amount: &over})

	// THEN: the extra 70 is not covered by the remaining 50 and the row is unchanged
	var fErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &fErr)
	assert.True(t, dec("50").Equal(fErr.Current))
	assert.True(t, dec("70").Equal(fErr.Required))
	assert.True(t, dec("50").Equal(f.balance(t, "w-bca")))

	// AND: raising it up to the balance is fine
	exact := dec("100")
	_, err = f.svc.UpdateTransaction(ctx, owner, exp.ID, ledger.TransactionPatch{Amount: &exact})
	require.NoError(t, err)
	assert.True(t, f.balance(t, "w-bca").IsZero())
}

func TestUpdateTransaction_ShrinkingIncomeAlreadySpent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inc, err := f.svc.CreateIncome(ctx, pipeline.IncomeRequest{OwnerID: owner, WalletID: "w-bca", Amount: dec("100")})
	require.NoError(t, err)
	_, err = f.svc.CreateExpense(ctx, pipeline.ExpenseRequest{OwnerID: owner, WalletID: "w-bca", Amount: dec("80")})
	require.NoError(t, err)

	less := dec("50")
	_, err = f.svc.UpdateTransaction(ctx, owner, inc.ID, ledger.TransactionPatch{Amount: &less})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	desc := "Salary (March)"
	_, err = f.svc.UpdateTransaction(ctx, owner, inc.ID, ledger.TransactionPatch{Description: &desc})
	assert.NoError(t, err, "non-amount edits are never funds checked")
}

func TestUpdateTransaction_ShrinkingWithdrawnDeposit(t *testing.T) {
	// GIVEN: 100 deposited to savings and 60 already withdrawn
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "w-bca", "1000")
	dep, err := f.svc.DepositToSavings(ctx, pipeline.SavingsRequest{OwnerID: owner, WalletID: "w-bca", Amount: dec("100")})
	require.NoError(t, err)
	_, err = f.svc.WithdrawFromSavings(ctx, pipeline.SavingsRequest{OwnerID: owner, WalletID: "w-bca", Amount: dec("60")})
	require.NoError(t, err)

	// WHEN: cutting the deposit to 30
	cut := dec("30")
	_, err = f.svc.UpdateTransaction(ctx, owner, dep.ID, ledger.TransactionPatch{Amount: &cut})

	// THEN: savings would go negative, so the edit is refused
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	total, err := f.l.Balances.TotalSavings(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("40").Equal(total))
}

func TestDeleteTransaction_Missing(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteTransaction(context.Background(), owner, "nope")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestTransfer_WithAdminFee(t *testing.T) {
	// GIVEN: BCA 1,000,000 and GoPay 0
	f := newFixture(t)
	f.fund(t, "w-bca", "1000000")

	// WHEN: transferring 200,000 with a 2,500 fee
	res, err := f.svc.Transfer(context.Background(), pipeline.TransferRequest{
		OwnerID: owner, FromWalletID: "w-bca", ToWalletID: "w-gopay",
		Amount: dec("200000"), AdminFee: dec("2500"),
	})
	require.NoError(t, err)

	// THEN: three rows, balances 797,500 and 200,000
	assert.True(t, dec("-200000").Equal(res.Out.Amount))
	assert.True(t, dec("200000").Equal(res.In.Amount))
	assert.Equal(t, res.Out.Date, res.In.Date)
	assert.Equal(t, ledger.KindWalletToWallet, res.Out.TransferKind)
	require.NotNil(t, res.Fee)
	assert.NoError(t, res.FeeError)
	assert.Equal(t, ledger.TxExpense, res.Fee.Type)
	assert.Equal(t, ledger.CategoryBankCharges, res.Fee.Category)

	assert.True(t, dec("797500").Equal(f.balance(t, "w-bca")))
	assert.True(t, dec("200000").Equal(f.balance(t, "w-gopay")))
}

func TestTransfer_LegsSumToZero(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "300")

	res, err := f.svc.Transfer(context.Background(), pipeline.TransferRequest{
		OwnerID: owner, FromWalletID: "w-bca", ToWalletID: "w-gopay", Amount: dec("120.75"),
	})
	require.NoError(t, err)
	assert.True(t, res.Out.Amount.Add(res.In.Amount).IsZero())
	assert.Nil(t, res.Fee)
}

func TestTransfer_FeeFailureKeepsTransfer(t *testing.T) {
	// GIVEN: exactly enough for the transfer but not the fee
	f := newFixture(t)
	f.fund(t, "w-bca", "100")

	res, err := f.svc.Transfer(context.Background(), pipeline.TransferRequest{
		OwnerID: owner, FromWalletID: "w-bca", ToWalletID: "w-gopay",
		Amount: dec("100"), AdminFee: dec("5"),
	})

	// THEN: the transfer stands and the fee failure is reported
	require.NoError(t, err)
	assert.Nil(t, res.Fee)
	assert.ErrorIs(t, res.FeeError, ledger.ErrInsufficientFunds)
	assert.True(t, f.balance(t, "w-bca").IsZero())
	assert.True(t, dec("100").Equal(f.balance(t, "w-gopay")))
}

func TestTransfer_InsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "10")

	_, err := f.svc.Transfer(context.Background(), pipeline.TransferRequest{
		OwnerID: owner, FromWalletID: "w-bca", ToWalletID: "w-gopay", Amount: dec("11"),
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	txs, err := f.l.ListByWallet(context.Background(), owner, "w-gopay")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTransfer_SameWalletRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transfer(context.Background(), pipeline.TransferRequest{
		OwnerID: owner, FromWalletID: "w-bca", ToWalletID: "w-bca", Amount: dec("1"),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestTransfer_DeleteOneLegDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "100")
	res, err := f.svc.Transfer(context.Background(), pipeline.TransferRequest{
		OwnerID: owner, FromWalletID: "w-bca", ToWalletID: "w-gopay", Amount: dec("40"),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTransaction(context.Background(), owner, res.Out.ID))

	_, err = f.l.Get(context.Background(), owner, res.In.ID)
	assert.NoError(t, err, "the other leg survives")
	assert.True(t, dec("100").Equal(f.balance(t, "w-bca")))
	assert.True(t, dec("40").Equal(f.balance(t, "w-gopay")))
}

// =============================================================================
// SAVINGS MOVES
// =============================================================================

func TestDepositAndWithdrawSavings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "w-bca", "1000")

	dep, err := f.svc.DepositToSavings(ctx, pipeline.SavingsRequest{
		OwnerID: owner, WalletID: "w-bca", Amount: dec("400"),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.KindWalletToSavings, dep.TransferKind)
	assert.True(t, dec("600").Equal(f.balance(t, "w-bca")))

	res, err := f.svc.WithdrawFromSavings(ctx, pipeline.SavingsRequest{
		OwnerID: owner, WalletID: "w-gopay", Amount: dec("150"),
	})
	require.NoError(t, err)
	assert.False(t, res.Savings.HasWallet())
	assert.True(t, dec("-150").Equal(res.Savings.Amount))
	assert.Equal(t, ledger.TxTransfer, res.Transfer.Type)
	assert.True(t, dec("150").Equal(f.balance(t, "w-gopay")))

	total, err := f.l.Balances.TotalSavings(ctx, owner)
	require.NoError(t, err)
	assert.True(t, dec("250").Equal(total))
}

func TestDepositToSavings_UnknownGoal(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "100")

	_, err := f.svc.DepositToSavings(context.Background(), pipeline.SavingsRequest{
		OwnerID: owner, WalletID: "w-bca", GoalID: "g-missing", Amount: dec("10"),
	})
	assert.True(t, ledger.IsNotFound(err))
}

func TestWithdrawFromSavings_MoreThanSaved(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "w-bca", "100")
	_, err := f.svc.DepositToSavings(context.Background(), pipeline.SavingsRequest{
		OwnerID: owner, WalletID: "w-bca", Amount: dec("50"),
	})
	require.NoError(t, err)

	_, err = f.svc.WithdrawFromSavings(context.Background(), pipeline.SavingsRequest{
		OwnerID: owner, WalletID: "w-bca", Amount: dec("60"),
	})
	var fErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &fErr)
	assert.True(t, dec("50").Equal(fErr.Current))
}
