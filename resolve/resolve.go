// Package resolve maps free-text wallet and goal mentions onto the owner's
// records and turns classifier output into confirmable proposals.
//
// Matching order, case-insensitive on trimmed text:
//  1. exact name
//  2. the name contains the mention ("bca" -> "BCA Tahapan")
//  3. the mention contains the name ("my gopay wallet" -> "GoPay")
//
// The first record matching at the earliest step wins. Inactive wallets
// never match.
package resolve

import (
	"context"
	"strings"

	"github.com/warp/ledger-engine/classifier"
	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
)

// Wallet finds the wallet a mention refers to.
func Wallet(mention string, wallets []ledger.Wallet) (ledger.Wallet, bool) {
	active := make([]ledger.Wallet, 0, len(wallets))
	for _, w := range wallets {
		if w.Active {
			active = append(active, w)
		}
	}
	i := match(mention, len(active), func(i int) string { return active[i].Name })
	if i < 0 {
		return ledger.Wallet{}, false
	}
	return active[i], true
}

// Goal finds the goal a mention refers to.
func Goal(mention string, goals []ledger.SavingsGoal) (ledger.SavingsGoal, bool) {
	i := match(mention, len(goals), func(i int) string { return goals[i].Name })
	if i < 0 {
		return ledger.SavingsGoal{}, false
	}
	return goals[i], true
}

func match(mention string, n int, name func(int) string) int {
	m := strings.ToLower(strings.TrimSpace(mention))
	if m == "" {
		return -1
	}
	steps := []func(string) bool{
		func(s string) bool { return s == m },
		func(s string) bool { return strings.Contains(s, m) },
		func(s string) bool { return strings.Contains(m, s) },
	}
	for _, ok := range steps {
		for i := 0; i < n; i++ {
			s := strings.ToLower(strings.TrimSpace(name(i)))
			if s != "" && ok(s) {
				return i
			}
		}
	}
	return -1
}

// Source is what the normalizer reads from: the owner's wallets and goals.
type Source interface {
	ListWallets(ctx context.Context, owner ledger.OwnerID) ([]ledger.Wallet, error)
	ListGoals(ctx context.Context, owner ledger.OwnerID) ([]ledger.SavingsGoal, error)
}

// Normalizer converts classifier proposals into confirm proposals with ids
// resolved against the owner's records.
type Normalizer struct {
	src Source
}

func NewNormalizer(src Source) *Normalizer {
	return &Normalizer{src: src}
}

// Normalize resolves every proposal. Names that match nothing are dropped:
// the proposal is still staged and the pipeline asks for the wallet on
// confirm.
func (n *Normalizer) Normalize(ctx context.Context, owner ledger.OwnerID, proposed []classifier.ProposedTransaction) ([]confirm.Proposal, error) {
	wallets, err := n.src.ListWallets(ctx, owner)
	if err != nil {
		return nil, err
	}
	goals, err := n.src.ListGoals(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]confirm.Proposal, 0, len(proposed))
	for _, pt := range proposed {
		p := confirm.Proposal{
			Action:      confirm.Action(pt.Type),
			Amount:      pt.Amount,
			Description: pt.Description,
			Category:    pt.Category,
			Source:      pt.Source,
			AssetName:   pt.Asset,
			AdminFee:    pt.AdminFee,
			Date:        pt.Date,
			Confidence:  pt.Confidence,
			Problem:     pt.Problem,
		}
		if w, ok := Wallet(pt.Wallet, wallets); ok {
			p.WalletID, p.WalletName = w.ID, w.Name
		}
		if w, ok := Wallet(pt.ToWallet, wallets); ok {
			p.ToWalletID, p.ToWalletName = w.ID, w.Name
		}
		if g, ok := Goal(pt.Goal, goals); ok {
			p.GoalID, p.GoalName = g.ID, g.Name
		}
		if p.Action == confirm.ActionInvestment {
			p.WalletID, p.WalletName = "", ""
		}
		out = append(out, p)
	}
	return out, nil
}
