package ledger

import (
	"context"
	"strings"

	"github.com/warp/ledger-engine/logctx"
)

// CreateWallet assigns an id and stores w. Names are unique per owner,
// compared case-insensitively.
func (l *Ledger) CreateWallet(ctx context.Context, w Wallet) (Wallet, error) {
	w.Name = strings.TrimSpace(w.Name)
	if w.ID == "" {
		w.ID = WalletID(l.newID())
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = l.now().UTC()
	}
	if err := w.Validate(); err != nil {
		return Wallet{}, err
	}

	err := l.repo.WithTx(ctx, func(repo Repository) error {
		existing, err := repo.ListWallets(ctx, w.OwnerID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if strings.EqualFold(e.Name, w.Name) {
				return &ValidationError{Field: "name", Message: "a wallet named " + e.Name + " already exists"}
			}
		}
		return repo.CreateWallet(ctx, w)
	})
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// SetWalletActive archives or restores a wallet. An inactive wallet keeps
// its rows and balance but takes no new transactions and never matches a
// name mention.
func (l *Ledger) SetWalletActive(ctx context.Context, owner OwnerID, id WalletID, active bool) (Wallet, error) {
	var out Wallet
	err := l.repo.WithTx(ctx, func(repo Repository) error {
		if err := repo.SetWalletActive(ctx, owner, id, active); err != nil {
			return err
		}
		w, err := repo.GetWallet(ctx, owner, id)
		out = w
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	logctx.From(ctx).InfoContext(ctx, "wallet updated", "owner", owner, "wallet", id, "active", active)
	return out, nil
}

func (l *Ledger) GetWallet(ctx context.Context, owner OwnerID, id WalletID) (Wallet, error) {
	return l.repo.GetWallet(ctx, owner, id)
}

func (l *Ledger) ListWallets(ctx context.Context, owner OwnerID) ([]Wallet, error) {
	return l.repo.ListWallets(ctx, owner)
}
