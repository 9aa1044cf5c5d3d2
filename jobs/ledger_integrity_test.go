package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetnova/vetnova/internal/accounting"
)

type fakeAuditor struct {
	mu         sync.Mutex
	accounts   []accounting.Account
	recomputed map[int64]decimal.Decimal
	calls      []int64
}

func (f *fakeAuditor) ListAccounts(ctx context.Context) ([]accounting.Account, error) {
	return f.accounts, nil
}

func (f *fakeAuditor) RecalculateBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accountID)
	return f.recomputed[accountID], nil
}

func TestRunLedgerIntegrityCheck(t *testing.T) {
	auditor := &fakeAuditor{
		accounts: []accounting.Account{
			{ID: 1, Code: "1000", Balance: decimal.RequireFromString("100.00")},
			{ID: 2, Code: "4000", Balance: decimal.RequireFromString("50.00")},
		},
		recomputed: map[int64]decimal.Decimal{
			1: decimal.RequireFromString("100.00"),
			2: decimal.RequireFromString("75.00"), // drifted
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := RunLedgerIntegrityCheck(context.Background(), auditor, logger)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, auditor.calls)
}
