package accounting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetnova/vetnova/internal/accounting/reports"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	key, err := cache.BuildKey(ctx, "ledger", "tb", "2026-03-31")
	require.NoError(t, err)

	loads := 0
	loader := func(ctx context.Context) (any, error) {
		loads++
		return map[string]string{"hello": "ledger"}, nil
	}

	var first map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	var second map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))

	assert.Equal(t, 1, loads)
	assert.Equal(t, first, second)
}

func TestBumpInvalidatesKeys(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	before, err := cache.BuildKey(ctx, "ledger", "tb", "2026-03-31")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, "ledger", "tb", "2026-03-31")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	wantErr := errors.New("boom")
	var out map[string]string
	err := cache.FetchJSON(ctx, "k", &out, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestNilCachePassesThrough(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil, time.Minute)

	key, err := cache.BuildKey(ctx, "ledger", "tb")
	require.NoError(t, err)

	loads := 0
	var out map[string]int
	for i := 0; i < 2; i++ {
		require.NoError(t, cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			loads++
			return map[string]int{"n": loads}, nil
		}))
	}
	assert.Equal(t, 2, loads)
	assert.NoError(t, cache.Bump(ctx))
}

// fakeReportRepo feeds fixed aggregate rows to the reporter.
type fakeReportRepo struct {
	tbRows       []reports.AccountBalance
	activityRows []reports.AccountBalance
	tbCalls      int
}

func (f *fakeReportRepo) TrialBalanceRows(ctx context.Context, asOf time.Time) ([]reports.AccountBalance, error) {
	f.tbCalls++
	return f.tbRows, nil
}

func (f *fakeReportRepo) ActivityRows(ctx context.Context, from, to time.Time) ([]reports.AccountBalance, error) {
	return f.activityRows, nil
}

func TestReporterTrialBalanceCached(t *testing.T) {
	ctx := context.Background()
	repo := &fakeReportRepo{tbRows: []reports.AccountBalance{
		{Code: "1200", Name: "AR", Type: "asset", Debit: decimal.RequireFromString("100.00"), Credit: decimal.Zero},
		{Code: "4000", Name: "Revenue", Type: "revenue", Debit: decimal.Zero, Credit: decimal.RequireFromString("100.00")},
	}}
	reporter := NewReporter(repo, newTestCache(t))

	asOf := day(2026, 3, 31)
	first, err := reporter.TrialBalance(ctx, asOf)
	require.NoError(t, err)
	assert.True(t, first.Balanced())

	second, err := reporter.TrialBalance(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.tbCalls)
	assert.True(t, second.TotalDebit.Equal(first.TotalDebit))
}

func TestReporterTrialBalanceOutOfBalance(t *testing.T) {
	repo := &fakeReportRepo{tbRows: []reports.AccountBalance{
		{Code: "1200", Type: "asset", Debit: decimal.RequireFromString("100.00"), Credit: decimal.Zero},
	}}
	reporter := NewReporter(repo, NewCache(nil, time.Minute))

	_, err := reporter.TrialBalance(context.Background(), day(2026, 3, 31))
	assert.ErrorIs(t, err, ErrOutOfBalance)
}

func TestReporterIncomeStatement(t *testing.T) {
	repo := &fakeReportRepo{activityRows: []reports.AccountBalance{
		{Code: "4000", Name: "Revenue", Type: "revenue", Debit: decimal.Zero, Credit: decimal.RequireFromString("1000.00")},
		{Code: "5000", Name: "Courier fees", Type: "expense", Debit: decimal.RequireFromString("300.00"), Credit: decimal.Zero},
	}}
	reporter := NewReporter(repo, NewCache(nil, time.Minute))

	is, err := reporter.IncomeStatement(context.Background(), day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	assert.True(t, is.NetIncome.Equal(decimal.RequireFromString("700.00")))
}
