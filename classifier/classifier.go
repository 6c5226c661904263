// Package classifier talks to the external natural-language service that
// turns a chat message into transaction proposals.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// Intent values returned by the service.
const (
	IntentTransaction = "transaction"
	IntentQuestion    = "question"
	IntentUnknown     = "unknown"
)

// ErrMalformedResult reports a response body that is not a result at all.
// Problems inside a single proposal are carried on that proposal instead.
var ErrMalformedResult = errors.New("malformed classifier result")

// Classifier turns free text into proposals.
type Classifier interface {
	Classify(ctx context.Context, owner ledger.OwnerID, text string) (Result, error)
}

// Result is a decoded classifier response.
type Result struct {
	Intent       string
	Reply        string
	Transactions []ProposedTransaction
}

// ProposedTransaction is one transaction as the classifier understood it.
// Wallet and goal references are free-text names, resolved later. Problem
// is set when a field could not be read; such a proposal goes back to the
// user for clarification.
type ProposedTransaction struct {
	Type        string
	Amount      decimal.Decimal
	Description string
	Category    string
	Source      string
	Wallet      string
	ToWallet    string
	Goal        string
	Asset       string
	AdminFee    decimal.Decimal
	Date        time.Time
	Confidence  float64
	Problem     string
}

// wire shapes
type rawResult struct {
	Intent       string           `json:"intent"`
	Reply        string           `json:"reply"`
	Transactions []rawTransaction `json:"transactions"`
}

type rawTransaction struct {
	Type        string          `json:"type"`
	Amount      json.RawMessage `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Source      string          `json:"source"`
	Wallet      string          `json:"wallet"`
	ToWallet    string          `json:"to_wallet"`
	Goal        string          `json:"goal"`
	Asset       string          `json:"asset"`
	AdminFee    json.RawMessage `json:"admin_fee"`
	Date        string          `json:"date"`
	Confidence  float64         `json:"confidence"`
}

// typeAliases maps every accepted type spelling onto the proposal type.
var typeAliases = map[string]string{
	"expense":          "expense",
	"income":           "income",
	"transfer":         "transfer",
	"savings":          "savings_deposit",
	"savings_deposit":  "savings_deposit",
	"savings_withdraw": "savings_withdraw",
	"investment":       "investment",
}

// ParseResult decodes a response body. Amounts may be JSON numbers or
// numeric strings. Only an undecodable body fails the whole result; a
// proposal with an unreadable field is kept with Problem set so its
// siblings still go through.
func ParseResult(data []byte) (Result, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedResult, err)
	}
	out := Result{Intent: strings.ToLower(strings.TrimSpace(raw.Intent)), Reply: raw.Reply}
	if out.Intent == "" {
		out.Intent = IntentUnknown
	}
	for _, rt := range raw.Transactions {
		out.Transactions = append(out.Transactions, parseTransaction(rt))
	}
	return out, nil
}

func parseTransaction(rt rawTransaction) ProposedTransaction {
	pt := ProposedTransaction{
		Description: strings.TrimSpace(rt.Description),
		Category:    strings.TrimSpace(rt.Category),
		Source:      strings.TrimSpace(rt.Source),
		Wallet:      strings.TrimSpace(rt.Wallet),
		ToWallet:    strings.TrimSpace(rt.ToWallet),
		Goal:        strings.TrimSpace(rt.Goal),
		Asset:       strings.TrimSpace(rt.Asset),
		AdminFee:    decimal.Zero,
		Confidence:  rt.Confidence,
	}

	var problems []string
	typ := strings.ToLower(strings.TrimSpace(rt.Type))
	if t, ok := typeAliases[typ]; ok {
		pt.Type = t
	} else {
		pt.Type = typ
		problems = append(problems, fmt.Sprintf("unknown transaction type %q", rt.Type))
	}

	if s := numberText(rt.Amount); s == "" {
		problems = append(problems, "amount is missing")
	} else if amount, err := decimal.NewFromString(s); err != nil {
		problems = append(problems, fmt.Sprintf("amount %q is not a number", s))
	} else {
		pt.Amount = amount
	}

	if s := numberText(rt.AdminFee); s != "" {
		if fee, err := decimal.NewFromString(s); err != nil {
			problems = append(problems, fmt.Sprintf("admin fee %q is not a number", s))
		} else {
			pt.AdminFee = fee
		}
	}

	if s := strings.TrimSpace(rt.Date); s != "" {
		if date, err := time.Parse("2006-01-02", s); err != nil {
			problems = append(problems, fmt.Sprintf("date %q is not YYYY-MM-DD", s))
		} else {
			pt.Date = date
		}
	}

	pt.Problem = strings.Join(problems, "; ")
	return pt
}

// numberText returns the text of a JSON number or numeric string, or "" for
// an absent or null value.
func numberText(raw json.RawMessage) string {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return ""
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		return strings.TrimSpace(str)
	}
	return v
}
