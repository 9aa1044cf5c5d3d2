// Package reports derives financial statements from aggregated ledger rows.
// Builders are pure functions so the double-entry invariants stay testable
// without a database.
package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance is one account's gross posted activity, as aggregated by
// the repository.
type AccountBalance struct {
	Code   string
	Name   string
	Type   string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// TrialBalanceRow nets an account to a single debit or credit column.
type TrialBalanceRow struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// TrialBalance lists every active account's net position as of a date.
// TotalDebit always equals TotalCredit; a divergence means posted data
// violates the double-entry invariant.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

// Balanced reports whether the totals match.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance nets each account's gross debits and credits into a
// single column and totals both sides.
func BuildTrialBalance(asOf time.Time, accounts []AccountBalance) TrialBalance {
	tb := TrialBalance{
		AsOf:        asOf,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, acc := range accounts {
		net := acc.Debit.Sub(acc.Credit)
		row := TrialBalanceRow{
			Code:   acc.Code,
			Name:   acc.Name,
			Type:   acc.Type,
			Debit:  decimal.Zero,
			Credit: decimal.Zero,
		}
		switch {
		case net.IsPositive():
			row.Debit = net
		case net.IsNegative():
			row.Credit = net.Neg()
		default:
			continue
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	return tb
}
