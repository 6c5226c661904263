package confirm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const owner ledger.OwnerID = "owner-1"

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, o ledger.OwnerID, p confirm.Proposal) (confirm.Result, error) {
	args := m.Called(ctx, o, p)
	return args.Get(0).(confirm.Result), args.Error(1)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newMachine(t *testing.T) (*confirm.Machine, *mockExecutor, *clock) {
	t.Helper()
	exec := &mockExecutor{}
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := confirm.NewMachine(confirm.NewMemoryStore(), exec, 10*time.Minute)
	m.SetClock(c.now)
	t.Cleanup(func() { exec.AssertExpectations(t) })
	return m, exec, c
}

func expense(amount string, confidence float64) confirm.Proposal {
	return confirm.Proposal{
		Action:      confirm.ActionExpense,
		Amount:      decimal.RequireFromString(amount),
		Description: "Lunch",
		Category:    "Food",
		WalletID:    "w-bca",
		WalletName:  "BCA",
		Confidence:  confidence,
	}
}

// =============================================================================
// STAGING
// =============================================================================

func TestStage_LowConfidenceNeverReachesPipeline(t *testing.T) {
	// GIVEN: a proposal with confidence 0.4
	m, exec, _ := newMachine(t)

	// WHEN: staging it
	staged, err := m.Stage(context.Background(), owner, "chat", []confirm.Proposal{expense("50000", 0.4)})

	// THEN: clarification requested, nothing staged, executor untouched
	var cErr *ledger.ClarificationError
	require.ErrorAs(t, err, &cErr)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Empty(t, staged.Pending)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestStage_Gate(t *testing.T) {
	tests := []struct {
		name string
		p    confirm.Proposal
		ok   bool
	}{
		{"at threshold", expense("10", confirm.MinConfidence), true},
		{"below threshold", expense("10", 0.49), false},
		{"zero amount", expense("0", 0.9), false},
		{"negative amount", expense("-5", 0.9), false},
		{"unknown action", confirm.Proposal{Action: "gift", Amount: decimal.NewFromInt(1), Confidence: 1}, false},
		{"unreadable field", confirm.Proposal{Action: confirm.ActionExpense, Amount: decimal.NewFromInt(1), Confidence: 1, Problem: "amount is missing"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := confirm.Gate(tt.p)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ledger.ErrValidation)
			}
		})
	}
}

func TestStage_RejectsOnlyTheUnreadableProposal(t *testing.T) {
	// GIVEN: one good proposal and one the classifier sent without an amount
	m, _, _ := newMachine(t)
	bad := expense("0", 0.3)
	bad.Problem = "amount is missing"

	// WHEN: staging both
	staged, err := m.Stage(context.Background(), owner, "chat", []confirm.Proposal{expense("25000", 0.9), bad})

	// THEN: the good one is staged and the other comes back with its reason
	require.NoError(t, err)
	require.Len(t, staged.Pending, 1)
	assert.Empty(t, staged.BatchID)
	require.Len(t, staged.Rejected, 1)
	assert.Equal(t, 1, staged.Rejected[0].Index)
	var cErr *ledger.ClarificationError
	require.ErrorAs(t, staged.Rejected[0].Err, &cErr)
	assert.Equal(t, "amount is missing", cErr.Reason)
}

func TestStage_SingleAndBatch(t *testing.T) {
	m, _, c := newMachine(t)
	ctx := context.Background()

	single, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{expense("10", 0.9)})
	require.NoError(t, err)
	require.Len(t, single.Pending, 1)
	assert.Empty(t, single.BatchID)
	assert.Equal(t, c.t.Add(10*time.Minute), single.Pending[0].ExpiresAt)

	batch, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{
		expense("10", 0.9), expense("20", 0.2), expense("30", 0.8),
	})
	require.NoError(t, err)
	require.Len(t, batch.Pending, 2)
	assert.NotEmpty(t, batch.BatchID)
	require.Len(t, batch.Rejected, 1)
	assert.Equal(t, 1, batch.Rejected[0].Index)
	for _, p := range batch.Pending {
		assert.Equal(t, batch.BatchID, p.BatchID)
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestConfirm_SuccessDiscardsToken(t *testing.T) {
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	p := expense("50000", 0.9)
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{p})
	require.NoError(t, err)
	token := staged.Pending[0].Token

	exec.On("Execute", mock.Anything, owner, p).Return(confirm.Result{Message: "Expense recorded"}, nil).Once()

	res, err := m.Confirm(ctx, owner, token)
	require.NoError(t, err)
	assert.Equal(t, "Expense recorded", res.Message)

	_, err = m.Confirm(ctx, owner, token)
	assert.ErrorIs(t, err, ledger.ErrExpired)
}

func TestConfirm_FailureKeepsToken(t *testing.T) {
	// GIVEN: a staged expense and a pipeline that reports insufficient funds
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{expense("50000", 0.9)})
	require.NoError(t, err)
	token := staged.Pending[0].Token

	funds := &ledger.InsufficientFundsError{WalletID: "w-bca", Current: decimal.NewFromInt(10), Required: decimal.NewFromInt(50000)}
	exec.On("Execute", mock.Anything, owner, mock.Anything).Return(confirm.Result{}, funds).Once()
	exec.On("Execute", mock.Anything, owner, mock.Anything).Return(confirm.Result{Message: "ok"}, nil).Once()

	// WHEN: confirming
	_, err = m.Confirm(ctx, owner, token)

	// THEN: the specific reason comes back and the token survives
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	_, err = m.Confirm(ctx, owner, token)
	assert.NoError(t, err)
}

func TestConfirm_OtherOwnerSeesExpired(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{expense("10", 0.9)})
	require.NoError(t, err)

	_, err = m.Confirm(ctx, "owner-2", staged.Pending[0].Token)
	assert.ErrorIs(t, err, ledger.ErrExpired)
}

func TestConfirm_AfterTTL(t *testing.T) {
	m, _, c := newMachine(t)
	ctx := context.Background()
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{expense("10", 0.9)})
	require.NoError(t, err)

	c.t = c.t.Add(10 * time.Minute)

	_, err = m.Confirm(ctx, owner, staged.Pending[0].Token)
	var eErr *ledger.ExpiredError
	require.ErrorAs(t, err, &eErr)
	assert.Equal(t, staged.Pending[0].Token, eErr.Token)
}

func TestConfirmAll_PerItemOutcomes(t *testing.T) {
	// GIVEN: a batch of three where the middle one fails
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	a, b, c := expense("10", 0.9), expense("20", 0.9), expense("30", 0.9)
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{a, b, c})
	require.NoError(t, err)

	exec.On("Execute", mock.Anything, owner, a).Return(confirm.Result{Message: "ok"}, nil).Once()
	exec.On("Execute", mock.Anything, owner, b).Return(confirm.Result{}, errors.New("db down")).Once()
	exec.On("Execute", mock.Anything, owner, c).Return(confirm.Result{Message: "ok"}, nil).Once()

	// WHEN: confirming all
	summary, err := m.ConfirmAll(ctx, owner, staged.BatchID)

	// THEN: one failure does not block the others
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Items, 3)
	assert.Error(t, summary.Items[1].Err)
	assert.Equal(t, "2 of 3 transactions recorded", summary.Message())

	// AND: only the failed token remains in the batch
	exec.On("Execute", mock.Anything, owner, b).Return(confirm.Result{Message: "ok"}, nil).Once()
	summary, err = m.ConfirmAll(ctx, owner, staged.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)

	_, err = m.ConfirmAll(ctx, owner, staged.BatchID)
	assert.ErrorIs(t, err, ledger.ErrExpired)
}

func TestConfirmAll_SkipsTokensConfirmedAlone(t *testing.T) {
	// GIVEN: a batch of two where the first was already confirmed on its own
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	a, b := expense("10", 0.9), expense("20", 0.9)
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{a, b})
	require.NoError(t, err)

	exec.On("Execute", mock.Anything, owner, a).Return(confirm.Result{Message: "ok"}, nil).Once()
	exec.On("Execute", mock.Anything, owner, b).Return(confirm.Result{Message: "ok"}, nil).Once()
	_, err = m.Confirm(ctx, owner, staged.Pending[0].Token)
	require.NoError(t, err)

	// WHEN: confirming the rest of the batch
	summary, err := m.ConfirmAll(ctx, owner, staged.BatchID)

	// THEN: only the remaining token is attempted and nothing is reported failed
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, "1 of 1 transactions recorded", summary.Message())
	require.Len(t, summary.Items, 1)
	assert.Equal(t, staged.Pending[1].Token, summary.Items[0].Token)
}

func TestConfirm_LastTokenRemovesBatch(t *testing.T) {
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	a, b := expense("10", 0.9), expense("20", 0.9)
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{a, b})
	require.NoError(t, err)

	exec.On("Execute", mock.Anything, owner, b).Return(confirm.Result{Message: "ok"}, nil).Once()
	require.NoError(t, m.Cancel(ctx, owner, staged.Pending[0].Token))
	_, err = m.Confirm(ctx, owner, staged.Pending[1].Token)
	require.NoError(t, err)

	_, err = m.ConfirmAll(ctx, owner, staged.BatchID)
	assert.ErrorIs(t, err, ledger.ErrExpired)
}

func TestEdit_ReturnsTemplateAndDiscards(t *testing.T) {
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	p := expense("50000", 0.9)
	p.Date = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{p})
	require.NoError(t, err)
	token := staged.Pending[0].Token

	tmpl, err := m.Edit(ctx, owner, token)
	require.NoError(t, err)
	assert.Equal(t, "type: expense\namount: 50000\ndescription: Lunch\ncategory: Food\nwallet: BCA\ndate: 2024-03-01", tmpl)

	_, err = m.Confirm(ctx, owner, token)
	assert.ErrorIs(t, err, ledger.ErrExpired)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelAll(t *testing.T) {
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	staged, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{expense("10", 0.9), expense("20", 0.9)})
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, owner, staged.Pending[0].Token))

	n, err := m.CancelAll(ctx, owner, staged.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Confirm(ctx, owner, staged.Pending[1].Token)
	assert.ErrorIs(t, err, ledger.ErrExpired)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurgeExpired(t *testing.T) {
	m, _, c := newMachine(t)
	ctx := context.Background()
	_, err := m.Stage(ctx, owner, "chat", []confirm.Proposal{expense("10", 0.9), expense("20", 0.9)})
	require.NoError(t, err)

	n, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.t = c.t.Add(time.Hour)
	n, err = m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "two tokens and the batch")
}

// =============================================================================
// CALLBACKS
// =============================================================================

func TestParseCallback(t *testing.T) {
	cb, err := confirm.ParseCallback("confirm_all:b-1")
	require.NoError(t, err)
	assert.Equal(t, confirm.OpConfirmAll, cb.Op)
	assert.Equal(t, "b-1", cb.ID)

	for _, bad := range []string{"", "confirm", "confirm:", "approve:t-1"} {
		_, err := confirm.ParseCallback(bad)
		assert.ErrorIs(t, err, ledger.ErrValidation, bad)
	}
}

func TestHandleCallback(t *testing.T) {
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	staged, err := m.Stage(ctx, owner, "bot", []confirm.Proposal{expense("10", 0.9)})
	require.NoError(t, err)
	token := staged.Pending[0].Token

	exec.On("Execute", mock.Anything, owner, mock.Anything).Return(confirm.Result{Message: "Expense recorded"}, nil).Once()

	reply, err := m.HandleCallback(ctx, owner, "confirm:"+token)
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "Expense recorded", reply.Message)

	reply, err = m.HandleCallback(ctx, owner, "cancel:"+token)
	require.NoError(t, err, "expired tokens are a user-facing outcome")
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, "no longer available")
}

func TestHandleCallback_SystemErrorsPropagate(t *testing.T) {
	m, exec, _ := newMachine(t)
	ctx := context.Background()
	staged, err := m.Stage(ctx, owner, "bot", []confirm.Proposal{expense("10", 0.9)})
	require.NoError(t, err)

	exec.On("Execute", mock.Anything, owner, mock.Anything).Return(confirm.Result{}, errors.New("disk full")).Once()

	_, err = m.HandleCallback(ctx, owner, "confirm:"+staged.Pending[0].Token)
	assert.EqualError(t, err, "disk full")
}
