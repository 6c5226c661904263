package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
)

type countingPurger struct {
	calls atomic.Int32
	n     int
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPendingSweeper_RunsOnStart(t *testing.T) {
	p := &countingPurger{n: 2}
	s := NewPendingSweeper(p, "@every 1h", quietLogger())

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool { return p.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestPendingSweeper_InvalidSchedule(t *testing.T) {
	s := NewPendingSweeper(&countingPurger{}, "every now and then", quietLogger())
	assert.Error(t, s.Start())
}

func TestPendingSweeper_Disabled(t *testing.T) {
	p := &countingPurger{}
	s := NewPendingSweeper(p, "", quietLogger())
	s.Enabled = false

	require.NoError(t, s.Start())
	s.Stop()
	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, DefaultSweepSchedule, s.Schedule)
}

func TestPendingSweeper_SweepSwallowsErrors(t *testing.T) {
	s := NewPendingSweeper(&countingPurger{err: errors.New("connection reset")}, "", quietLogger())
	assert.Equal(t, 0, s.Sweep())
}

func TestPendingSweeper_PurgesExpiredProposals(t *testing.T) {
	// GIVEN: A machine with one proposal staged an hour ago
	h := setupTestHandler(t)
	ctx := context.Background()
	_, err := h.Ledger.CreateWallet(ctx, ledger.Wallet{OwnerID: demoOwner, Name: "BCA", Type: ledger.WalletBankAccount, Active: true})
	require.NoError(t, err)

	staged := time.Now().Add(-time.Hour)
	h.Confirm.SetClock(func() time.Time { return staged })
	_, err = h.Confirm.Stage(ctx, demoOwner, "", []confirm.Proposal{{
		Action: confirm.ActionExpense, Amount: rupiah(1000), Confidence: 0.9,
	}})
	require.NoError(t, err)
	h.Confirm.SetClock(time.Now)

	// WHEN: The sweeper runs
	s := NewPendingSweeper(h.Confirm, "", quietLogger())

	// THEN: The stale proposal is removed
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Sweep())
}
