package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vetnova/vetnova/internal/accounting"
)

const integrityConcurrency = 4

// LedgerAuditor exposes the ledger operations the integrity check needs.
type LedgerAuditor interface {
	ListAccounts(ctx context.Context) ([]accounting.Account, error)
	RecalculateBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// RunLedgerIntegrityCheck recomputes every account balance from posted
// journal lines and logs any account whose stored balance had drifted.
// Recomputation also repairs the drift, since balances are derived data.
func RunLedgerIntegrityCheck(ctx context.Context, ledger LedgerAuditor, logger *slog.Logger) error {
	accounts, err := ledger.ListAccounts(ctx)
	if err != nil {
		return err
	}

	var drifted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(integrityConcurrency)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			recomputed, err := ledger.RecalculateBalance(ctx, account.ID)
			if err != nil {
				return err
			}
			if !recomputed.Equal(account.Balance) {
				drifted.Add(1)
				logger.Warn("ledger balance drift repaired",
					slog.String("account_code", account.Code),
					slog.String("stored", account.Balance.String()),
					slog.String("recomputed", recomputed.String()),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("ledger integrity check complete",
		slog.Int("accounts", len(accounts)),
		slog.Int64("drifted", drifted.Load()),
	)
	return nil
}

// NewLedgerIntegrityHandler adapts the integrity check to an Asynq handler.
func NewLedgerIntegrityHandler(ledger LedgerAuditor, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return RunLedgerIntegrityCheck(ctx, ledger, logger)
	}
}
