package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
)

// Executor commits a confirmed proposal. PipelineExecutor is the production
// implementation.
type Executor interface {
	Execute(ctx context.Context, owner ledger.OwnerID, p Proposal) (Result, error)
}

// Result is what a committed proposal produced.
type Result struct {
	Message      string               `json:"message"`
	Transactions []ledger.Transaction `json:"transactions"`
	Warning      string               `json:"warning,omitempty"`
}

// Machine drives staged proposals through confirm, edit and cancel.
type Machine struct {
	store    PendingStore
	exec     Executor
	ttl      time.Duration
	now      func() time.Time
	newToken func() string

	batchMu sync.Mutex // guards batch membership rewrites
}

// NewMachine creates a machine. ttl <= 0 selects DefaultTTL.
func NewMachine(store PendingStore, exec Executor, ttl time.Duration) *Machine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Machine{
		store:    store,
		exec:     exec,
		ttl:      ttl,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// SetClock replaces the time source (tests).
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// =============================================================================
// STAGING
// =============================================================================

// Rejection is a proposal that did not pass the gate.
type Rejection struct {
	Index int
	Err   error
}

// Staged is the outcome of Stage. BatchID is set only when more than one
// proposal was accepted.
type Staged struct {
	Pending  []Pending
	BatchID  string
	Rejected []Rejection
}

// Gate checks whether a proposal may be staged at all.
func Gate(p Proposal) error {
	if p.Problem != "" {
		return &ledger.ClarificationError{Reason: p.Problem}
	}
	if !p.Action.Valid() {
		return &ledger.ClarificationError{Reason: fmt.Sprintf("unknown action %q", p.Action)}
	}
	if p.Confidence < MinConfidence {
		return &ledger.ClarificationError{Reason: fmt.Sprintf("not sure what you meant (confidence %.2f)", p.Confidence)}
	}
	if !p.Amount.IsPositive() {
		return &ledger.ClarificationError{Reason: "amount must be greater than zero"}
	}
	return nil
}

// Stage gates each proposal and stores the accepted ones under fresh
// tokens. When nothing passes, the first rejection is returned as the error.
func (m *Machine) Stage(ctx context.Context, owner ledger.OwnerID, channel string, proposals []Proposal) (Staged, error) {
	if len(proposals) == 0 {
		return Staged{}, &ledger.ClarificationError{Reason: "no transaction found in the message"}
	}

	var out Staged
	var accepted []Proposal
	for i, p := range proposals {
		if err := Gate(p); err != nil {
			out.Rejected = append(out.Rejected, Rejection{Index: i, Err: err})
			continue
		}
		accepted = append(accepted, p)
	}
	if len(accepted) == 0 {
		return out, out.Rejected[0].Err
	}

	now := m.now().UTC()
	expires := now.Add(m.ttl)
	if len(accepted) > 1 {
		out.BatchID = m.newToken()
	}
	tokens := make([]string, 0, len(accepted))
	for _, p := range accepted {
		pending := Pending{
			Token:     m.newToken(),
			OwnerID:   owner,
			ChannelID: channel,
			BatchID:   out.BatchID,
			Proposal:  p,
			CreatedAt: now,
			ExpiresAt: expires,
		}
		if err := m.store.SavePending(ctx, pending); err != nil {
			return Staged{}, fmt.Errorf("saving pending %s: %w", pending.Token, err)
		}
		out.Pending = append(out.Pending, pending)
		tokens = append(tokens, pending.Token)
	}
	if out.BatchID != "" {
		err := m.store.SaveBatch(ctx, Batch{
			ID:        out.BatchID,
			OwnerID:   owner,
			ChannelID: channel,
			Tokens:    tokens,
			CreatedAt: now,
			ExpiresAt: expires,
		})
		if err != nil {
			return Staged{}, fmt.Errorf("saving batch %s: %w", out.BatchID, err)
		}
	}

	logctx.From(ctx).InfoContext(ctx, "proposals staged",
		"owner", owner, "channel", channel, "staged", len(out.Pending), "rejected", len(out.Rejected), "batch", out.BatchID)
	return out, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// lookup returns the owner's live entry or an ExpiredError. Entries of
// other owners look exactly like missing ones.
func (m *Machine) lookup(ctx context.Context, owner ledger.OwnerID, token string) (Pending, error) {
	p, ok, err := m.store.GetPending(ctx, token, m.now().UTC())
	if err != nil {
		return Pending{}, fmt.Errorf("loading pending %s: %w", token, err)
	}
	if !ok || p.OwnerID != owner {
		return Pending{}, &ledger.ExpiredError{Token: token}
	}
	return p, nil
}

// Confirm commits the proposal behind token. On success the token is gone,
// from its batch as well; on failure it stays so the user can fix the cause
// and confirm again.
func (m *Machine) Confirm(ctx context.Context, owner ledger.OwnerID, token string) (Result, error) {
	p, res, err := m.commit(ctx, owner, token)
	if err != nil {
		return res, err
	}
	if err := m.detach(ctx, p); err != nil {
		return res, err
	}
	return res, nil
}

func (m *Machine) commit(ctx context.Context, owner ledger.OwnerID, token string) (Pending, Result, error) {
	p, err := m.lookup(ctx, owner, token)
	if err != nil {
		return Pending{}, Result{}, err
	}
	res, err := m.exec.Execute(ctx, owner, p.Proposal)
	if err != nil {
		logctx.From(ctx).InfoContext(ctx, "confirm failed, token kept",
			"owner", owner, "token", token, "action", p.Proposal.Action, "error", err)
		return Pending{}, Result{}, err
	}
	if err := m.store.DeletePending(ctx, token); err != nil {
		return p, res, fmt.Errorf("discarding pending %s: %w", token, err)
	}
	logctx.From(ctx).InfoContext(ctx, "proposal confirmed",
		"owner", owner, "token", token, "action", p.Proposal.Action)
	return p, res, nil
}

// detach drops a decided token from its batch so a later ConfirmAll or
// CancelAll does not see it again. An emptied batch is removed.
func (m *Machine) detach(ctx context.Context, p Pending) error {
	if p.BatchID == "" {
		return nil
	}
	m.batchMu.Lock()
	defer m.batchMu.Unlock()

	b, ok, err := m.store.GetBatch(ctx, p.BatchID, m.now().UTC())
	if err != nil {
		return fmt.Errorf("loading batch %s: %w", p.BatchID, err)
	}
	if !ok {
		return nil
	}
	tokens := make([]string, 0, len(b.Tokens))
	for _, t := range b.Tokens {
		if t != p.Token {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		err = m.store.DeleteBatch(ctx, b.ID)
	} else {
		b.Tokens = tokens
		err = m.store.SaveBatch(ctx, b)
	}
	if err != nil {
		return fmt.Errorf("updating batch %s: %w", b.ID, err)
	}
	return nil
}

// ItemResult is one token's outcome inside ConfirmAll.
type ItemResult struct {
	Token  string
	Result Result
	Err    error
}

// BatchSummary reports every item of a ConfirmAll.
type BatchSummary struct {
	BatchID   string
	Items     []ItemResult
	Succeeded int
	Failed    int
}

// Message renders the summary for a chat reply.
func (s BatchSummary) Message() string {
	return fmt.Sprintf("%d of %d transactions recorded", s.Succeeded, s.Succeeded+s.Failed)
}

// ConfirmAll attempts every token of the batch independently. Failed tokens
// stay staged and remain in the batch; the batch is removed once empty.
func (m *Machine) ConfirmAll(ctx context.Context, owner ledger.OwnerID, batchID string) (BatchSummary, error) {
	b, err := m.batch(ctx, owner, batchID)
	if err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{BatchID: batchID}
	var remaining []string
	for _, token := range b.Tokens {
		_, res, err := m.commit(ctx, owner, token)
		item := ItemResult{Token: token, Result: res, Err: err}
		switch {
		case err == nil:
			summary.Succeeded++
		case errors.Is(err, ledger.ErrExpired):
			summary.Failed++
		default:
			summary.Failed++
			remaining = append(remaining, token)
		}
		summary.Items = append(summary.Items, item)
	}

	m.batchMu.Lock()
	if len(remaining) == 0 {
		err = m.store.DeleteBatch(ctx, batchID)
	} else {
		b.Tokens = remaining
		err = m.store.SaveBatch(ctx, b)
	}
	m.batchMu.Unlock()
	if err != nil {
		return summary, fmt.Errorf("updating batch %s: %w", batchID, err)
	}
	logctx.From(ctx).InfoContext(ctx, "batch confirmed",
		"owner", owner, "batch", batchID, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

// Edit discards the token and returns a template of the proposal for the
// user to correct and send again.
func (m *Machine) Edit(ctx context.Context, owner ledger.OwnerID, token string) (string, error) {
	p, err := m.discard(ctx, owner, token)
	if err != nil {
		return "", err
	}
	if err := m.detach(ctx, p); err != nil {
		return "", err
	}
	return FormatTemplate(p.Proposal), nil
}

// Cancel discards the token without writing anything.
func (m *Machine) Cancel(ctx context.Context, owner ledger.OwnerID, token string) error {
	p, err := m.discard(ctx, owner, token)
	if err != nil {
		return err
	}
	return m.detach(ctx, p)
}

func (m *Machine) discard(ctx context.Context, owner ledger.OwnerID, token string) (Pending, error) {
	p, err := m.lookup(ctx, owner, token)
	if err != nil {
		return Pending{}, err
	}
	if err := m.store.DeletePending(ctx, token); err != nil {
		return Pending{}, fmt.Errorf("discarding pending %s: %w", token, err)
	}
	return p, nil
}

// CancelAll discards every token of the batch and the batch itself. It
// reports how many tokens were still pending.
func (m *Machine) CancelAll(ctx context.Context, owner ledger.OwnerID, batchID string) (int, error) {
	b, err := m.batch(ctx, owner, batchID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, token := range b.Tokens {
		if _, err := m.discard(ctx, owner, token); err != nil {
			if errors.Is(err, ledger.ErrExpired) {
				continue
			}
			return n, err
		}
		n++
	}
	if err := m.store.DeleteBatch(ctx, batchID); err != nil {
		return n, fmt.Errorf("discarding batch %s: %w", batchID, err)
	}
	return n, nil
}

// PurgeExpired removes entries whose TTL has passed.
func (m *Machine) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.PurgeExpired(ctx, m.now().UTC())
}

func (m *Machine) batch(ctx context.Context, owner ledger.OwnerID, id string) (Batch, error) {
	b, ok, err := m.store.GetBatch(ctx, id, m.now().UTC())
	if err != nil {
		return Batch{}, fmt.Errorf("loading batch %s: %w", id, err)
	}
	if !ok || b.OwnerID != owner {
		return Batch{}, &ledger.ExpiredError{Token: id}
	}
	return b, nil
}
