package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vetnova/vetnova/internal/accounting/reports"
)

// ErrDuplicateReference indicates an entry reference collision.
var ErrDuplicateReference = errors.New("accounting: entry reference already exists")

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations posting and reversal need inside one
// transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error
	ReplaceLines(ctx context.Context, entryID int64, lines []JournalLine) error
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkPosted(ctx context.Context, id int64, at time.Time, actorID int64) error
	SetReversedBy(ctx context.Context, entryID, reversalID int64) error
	FindPeriodForDate(ctx context.Context, date time.Time) (FiscalPeriod, error)
	ClosePeriod(ctx context.Context, periodID int64, at time.Time) error
	GetAccount(ctx context.Context, id int64) (Account, error)
	InsertAccount(ctx context.Context, a Account) (Account, error)
	SumPostedLines(ctx context.Context, accountID int64) (debit, credit decimal.Decimal, err error)
	UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal, at time.Time) error
	ResolveMapping(ctx context.Context, module, key string) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("accounting: begin tx: %w", err)
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const entryColumns = `id, date, reference, description, entry_type, source_id, is_posted,
	posted_at, posted_by, reversed_by_entry_id, created_by, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(
		&e.ID, &e.Date, &e.Reference, &e.Description, &e.EntryType, &e.SourceID,
		&e.IsPosted, &e.PostedAt, &e.PostedBy, &e.ReversedByEntryID,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrEntryNotFound
	}
	return e, err
}

const accountColumns = `id, code, name, account_type, parent_id, description, is_bank, is_ar, is_ap,
	balance, balance_updated_at, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Description,
		&a.IsBank, &a.IsAR, &a.IsAP, &a.Balance, &a.BalanceAt, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// GetEntry retrieves an entry with its lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE id = $1`, entryColumns)
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// ListEntries retrieves entries newest first, without lines.
func (r *Repository) ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM journal_entries ORDER BY date DESC, id DESC LIMIT $1 OFFSET $2`, entryColumns)
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("accounting: list entries: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) listLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, account_id, debit, credit, description
		FROM journal_lines WHERE entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, fmt.Errorf("accounting: list lines: %w", err)
	}
	defer rows.Close()

	var out []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetAccount retrieves an account by id.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// ListAccounts retrieves the chart of accounts ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts ORDER BY code`, accountColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("accounting: list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TrialBalanceRows aggregates posted lines per active account up to a date.
func (r *Repository) TrialBalanceRows(ctx context.Context, asOf time.Time) ([]reports.AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.code, a.name, a.account_type,
		       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM accounts a
		LEFT JOIN journal_lines l ON l.account_id = a.id
		LEFT JOIN journal_entries e ON e.id = l.entry_id AND e.is_posted AND e.date <= $1
		WHERE a.is_active
		GROUP BY a.code, a.name, a.account_type
		HAVING COALESCE(SUM(l.debit), 0) <> 0 OR COALESCE(SUM(l.credit), 0) <> 0
		ORDER BY a.code`, asOf)
	if err != nil {
		return nil, fmt.Errorf("accounting: trial balance rows: %w", err)
	}
	defer rows.Close()
	return scanBalanceRows(rows)
}

// ActivityRows aggregates posted revenue and expense lines inside a range.
func (r *Repository) ActivityRows(ctx context.Context, from, to time.Time) ([]reports.AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.code, a.name, a.account_type,
		       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM accounts a
		JOIN journal_lines l ON l.account_id = a.id
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE a.is_active
		  AND a.account_type IN ('revenue', 'expense')
		  AND e.is_posted AND e.date >= $1 AND e.date <= $2
		GROUP BY a.code, a.name, a.account_type
		ORDER BY a.code`, from, to)
	if err != nil {
		return nil, fmt.Errorf("accounting: activity rows: %w", err)
	}
	defer rows.Close()
	return scanBalanceRows(rows)
}

func scanBalanceRows(rows pgx.Rows) ([]reports.AccountBalance, error) {
	var out []reports.AccountBalance
	for rows.Next() {
		var b reports.AccountBalance
		if err := rows.Scan(&b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

// InsertEntry persists a draft entry header.
func (t *txRepo) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO journal_entries (date, reference, description, entry_type, source_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		e.Date, e.Reference, e.Description, e.EntryType, e.SourceID, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return JournalEntry{}, ErrDuplicateReference
		}
		return JournalEntry{}, fmt.Errorf("accounting: insert entry: %w", err)
	}
	return e, nil
}

// InsertLines appends lines to an entry.
func (t *txRepo) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	for _, l := range lines {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit, credit, description)
			VALUES ($1, $2, $3, $4, $5)`,
			entryID, l.AccountID, l.Debit, l.Credit, l.Description,
		); err != nil {
			return fmt.Errorf("accounting: insert line: %w", err)
		}
	}
	return nil
}

// ReplaceLines deletes and reinserts the lines of a draft.
func (t *txRepo) ReplaceLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, entryID); err != nil {
		return fmt.Errorf("accounting: delete lines: %w", err)
	}
	return t.InsertLines(ctx, entryID, lines)
}

// GetEntryForUpdate locks the entry header and loads its lines.
func (t *txRepo) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE id = $1 FOR UPDATE`, entryColumns)
	entry, err := scanEntry(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, entry_id, account_id, debit, credit, description
		FROM journal_lines WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("accounting: load lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, l)
	}
	return entry, rows.Err()
}

// MarkPosted flips the posted flag exactly once.
func (t *txRepo) MarkPosted(ctx context.Context, id int64, at time.Time, actorID int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE journal_entries
		SET is_posted = TRUE, posted_at = $2, posted_by = $3, updated_at = $2
		WHERE id = $1 AND NOT is_posted`, id, at, actorID)
	if err != nil {
		return fmt.Errorf("accounting: mark posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPosted
	}
	return nil
}

// SetReversedBy links the original entry to its reversal.
func (t *txRepo) SetReversedBy(ctx context.Context, entryID, reversalID int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE journal_entries SET reversed_by_entry_id = $2, updated_at = NOW()
		WHERE id = $1 AND reversed_by_entry_id IS NULL`, entryID, reversalID)
	if err != nil {
		return fmt.Errorf("accounting: set reversed by: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

// FindPeriodForDate locks the fiscal period covering the date.
func (t *txRepo) FindPeriodForDate(ctx context.Context, date time.Time) (FiscalPeriod, error) {
	var p FiscalPeriod
	err := t.tx.QueryRow(ctx, `
		SELECT id, code, start_date, end_date, is_closed, closed_at, created_at
		FROM fiscal_periods
		WHERE start_date <= $1 AND end_date >= $1
		FOR UPDATE`, date.Format("2006-01-02"),
	).Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.IsClosed, &p.ClosedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FiscalPeriod{}, ErrPeriodNotFound
	}
	return p, err
}

// ClosePeriod closes a period once.
func (t *txRepo) ClosePeriod(ctx context.Context, periodID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE fiscal_periods SET is_closed = TRUE, closed_at = $2
		WHERE id = $1 AND NOT is_closed`, periodID, at)
	if err != nil {
		return fmt.Errorf("accounting: close period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodClosed
	}
	return nil
}

// GetAccount retrieves an account inside the transaction.
func (t *txRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return scanAccount(t.tx.QueryRow(ctx, query, id))
}

// InsertAccount persists a chart-of-accounts node.
func (t *txRepo) InsertAccount(ctx context.Context, a Account) (Account, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO accounts (code, name, account_type, parent_id, description, is_bank, is_ar, is_ap, balance, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		a.Code, a.Name, a.Type, a.ParentID, a.Description, a.IsBank, a.IsAR, a.IsAP, a.Balance, a.IsActive,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Account{}, fmt.Errorf("accounting: account code %s already exists", a.Code)
		}
		return Account{}, fmt.Errorf("accounting: insert account: %w", err)
	}
	return a, nil
}

// SumPostedLines returns gross debit and credit sums over posted lines.
func (t *txRepo) SumPostedLines(ctx context.Context, accountID int64) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.account_id = $1 AND e.is_posted`, accountID,
	).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("accounting: sum lines: %w", err)
	}
	return debit, credit, nil
}

// UpdateAccountBalance writes the recomputed cache value.
func (t *txRepo) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET balance = $2, balance_updated_at = $3, updated_at = $3
		WHERE id = $1`, accountID, balance, at)
	if err != nil {
		return fmt.Errorf("accounting: update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ResolveMapping looks up the account for a module/key pair.
func (t *txRepo) ResolveMapping(ctx context.Context, module, key string) (int64, error) {
	var accountID int64
	err := t.tx.QueryRow(ctx, `
		SELECT account_id FROM account_mappings WHERE module = $1 AND key = $2`,
		module, key,
	).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrMappingNotFound, module, key)
	}
	return accountID, err
}
