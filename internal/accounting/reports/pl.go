package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// IncomeStatementLine is a revenue or expense account's net activity.
type IncomeStatementLine struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// IncomeStatement summarises revenue and expenses over a period.
type IncomeStatement struct {
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	Revenue       []IncomeStatementLine `json:"revenue"`
	Expenses      []IncomeStatementLine `json:"expenses"`
	TotalRevenue  decimal.Decimal       `json:"total_revenue"`
	TotalExpenses decimal.Decimal       `json:"total_expenses"`
	NetIncome     decimal.Decimal       `json:"net_income"`
}

// BuildIncomeStatement nets revenue accounts credit-minus-debit and expense
// accounts debit-minus-credit, then derives net income.
func BuildIncomeStatement(from, to time.Time, accounts []AccountBalance) IncomeStatement {
	out := IncomeStatement{
		From:          from,
		To:            to,
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, acc := range accounts {
		switch acc.Type {
		case "revenue":
			amount := acc.Credit.Sub(acc.Debit)
			out.Revenue = append(out.Revenue, IncomeStatementLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			out.TotalRevenue = out.TotalRevenue.Add(amount)
		case "expense":
			amount := acc.Debit.Sub(acc.Credit)
			out.Expenses = append(out.Expenses, IncomeStatementLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			out.TotalExpenses = out.TotalExpenses.Add(amount)
		}
	}
	sort.Slice(out.Revenue, func(i, j int) bool { return out.Revenue[i].Code < out.Revenue[j].Code })
	sort.Slice(out.Expenses, func(i, j int) bool { return out.Expenses[i].Code < out.Expenses[j].Code })
	out.NetIncome = out.TotalRevenue.Sub(out.TotalExpenses)
	return out
}
