package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/vetnova/vetnova/internal/accounting/reports"
)

// ReportRepository provides the aggregated rows the report builders consume.
type ReportRepository interface {
	TrialBalanceRows(ctx context.Context, asOf time.Time) ([]reports.AccountBalance, error)
	ActivityRows(ctx context.Context, from, to time.Time) ([]reports.AccountBalance, error)
}

// Reporter derives financial statements from posted journal data. Results
// are cached until the next posting bumps the cache version.
type Reporter struct {
	repo  ReportRepository
	cache *Cache
}

// NewReporter constructs the report service.
func NewReporter(repo ReportRepository, cache *Cache) *Reporter {
	return &Reporter{repo: repo, cache: cache}
}

// TrialBalance builds the trial balance as of a date. It returns
// ErrOutOfBalance when total debits diverge from total credits, which can
// only happen if posted data violates the double-entry invariant.
func (r *Reporter) TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error) {
	key, err := r.cache.BuildKey(ctx, "ledger", "tb", asOf.Format("2006-01-02"))
	if err != nil {
		return reports.TrialBalance{}, err
	}
	var tb reports.TrialBalance
	err = r.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (any, error) {
		rows, err := r.repo.TrialBalanceRows(ctx, asOf)
		if err != nil {
			return nil, err
		}
		built := reports.BuildTrialBalance(asOf, rows)
		if !built.Balanced() {
			return nil, fmt.Errorf("%w: debit %s vs credit %s", ErrOutOfBalance,
				built.TotalDebit.StringFixed(2), built.TotalCredit.StringFixed(2))
		}
		return built, nil
	})
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return tb, nil
}

// IncomeStatement builds the income statement for a date range.
func (r *Reporter) IncomeStatement(ctx context.Context, from, to time.Time) (reports.IncomeStatement, error) {
	key, err := r.cache.BuildKey(ctx, "ledger", "pl", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return reports.IncomeStatement{}, err
	}
	var is reports.IncomeStatement
	err = r.cache.FetchJSON(ctx, key, &is, func(ctx context.Context) (any, error) {
		rows, err := r.repo.ActivityRows(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return reports.BuildIncomeStatement(from, to, rows), nil
	})
	if err != nil {
		return reports.IncomeStatement{}, err
	}
	return is, nil
}
