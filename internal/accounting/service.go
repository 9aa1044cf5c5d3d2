package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vetnova/vetnova/internal/shared"
)

// DefaultIVARate is the Mexican value-added tax applied by the invoice and
// bill builders when no explicit tax amount is given.
var DefaultIVARate = decimal.RequireFromString("0.16")

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates derived report caches after a posting.
type CachePort interface {
	Bump(ctx context.Context) error
}

// Service owns the journal lifecycle: drafts, posting, reversal, balance
// recomputation, and the built-in entry builders for billing events.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CachePort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// DraftEntryInput describes a draft journal entry. Drafts may be unbalanced;
// individual lines must still be single-sided.
type DraftEntryInput struct {
	Date        time.Time
	Reference   string
	Description string
	EntryType   EntryType
	CreatedBy   int64
	Lines       []JournalLine
}

// CreateDraft persists a new unposted entry with its lines. Line-level
// invariants are enforced immediately; the balance invariant waits for Post.
func (s *Service) CreateDraft(ctx context.Context, input DraftEntryInput) (JournalEntry, error) {
	if input.Reference == "" {
		return JournalEntry{}, errors.New("accounting: reference required")
	}
	for idx, line := range input.Lines {
		if err := line.Clean(); err != nil {
			return JournalEntry{}, fmt.Errorf("line %d: %w", idx, err)
		}
	}
	entryType := input.EntryType
	if entryType == "" {
		entryType = EntryTypeManual
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.InsertEntry(ctx, JournalEntry{
			Date:        input.Date,
			Reference:   input.Reference,
			Description: input.Description,
			EntryType:   entryType,
			SourceID:    uuid.New(),
			CreatedBy:   input.CreatedBy,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, entry.ID, input.Lines); err != nil {
			return err
		}
		entry.Lines = withEntryID(entry.ID, input.Lines)
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// ReplaceDraftLines swaps the lines of an unposted entry so a caller can fix
// an unbalanced draft and retry posting.
func (s *Service) ReplaceDraftLines(ctx context.Context, entryID int64, lines []JournalLine) (JournalEntry, error) {
	for idx, line := range lines {
		if err := line.Clean(); err != nil {
			return JournalEntry{}, fmt.Errorf("line %d: %w", idx, err)
		}
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.IsPosted {
			return ErrAlreadyPosted
		}
		if err := tx.ReplaceLines(ctx, entryID, lines); err != nil {
			return err
		}
		entry = current
		entry.Lines = withEntryID(entryID, lines)
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Post finalises a draft entry. It fails when the entry is already posted,
// when the lines do not balance, or when the fiscal period covering the
// entry date is closed. On success the entry becomes immutable and every
// touched account balance is recomputed inside the same transaction.
func (s *Service) Post(ctx context.Context, entryID, actorID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.IsPosted {
			return ErrAlreadyPosted
		}
		if err := current.CleanForPosting(); err != nil {
			return err
		}
		period, err := tx.FindPeriodForDate(ctx, current.Date)
		if err != nil {
			return err
		}
		if period.IsClosed {
			return fmt.Errorf("%w: %s", ErrPeriodClosed, period.Code)
		}
		at := s.now()
		if err := tx.MarkPosted(ctx, current.ID, at, actorID); err != nil {
			return err
		}
		if err := s.recalculateTouched(ctx, tx, current); err != nil {
			return err
		}
		current.IsPosted = true
		current.PostedAt = &at
		current.PostedBy = &actorID
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterPosting(ctx, actorID, "journal.post", entry)
	return entry, nil
}

// Reverse creates and posts a counter entry with swapped debit/credit lines
// and links it to the original. Posted entries are never mutated.
func (s *Service) Reverse(ctx context.Context, entryID, actorID int64, memo string) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if !original.IsPosted {
			return ErrNotPosted
		}
		if original.ReversedByEntryID != nil {
			return ErrAlreadyReversed
		}
		at := s.now()
		period, err := tx.FindPeriodForDate(ctx, at)
		if err != nil {
			return err
		}
		if period.IsClosed {
			return fmt.Errorf("%w: %s", ErrPeriodClosed, period.Code)
		}
		if memo == "" {
			memo = fmt.Sprintf("Reversal of %s", original.Reference)
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			Date:        at,
			Reference:   original.Reference + "-REV",
			Description: memo,
			EntryType:   EntryTypeReversal,
			SourceID:    uuid.New(),
			CreatedBy:   actorID,
		})
		if err != nil {
			return err
		}
		lines := reverseLines(original.Lines)
		if err := tx.InsertLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, inserted.ID, at, actorID); err != nil {
			return err
		}
		if err := tx.SetReversedBy(ctx, original.ID, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = withEntryID(inserted.ID, lines)
		inserted.IsPosted = true
		inserted.PostedAt = &at
		inserted.PostedBy = &actorID
		if err := s.recalculateTouched(ctx, tx, inserted); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterPosting(ctx, actorID, "journal.reverse", reversal)
	return reversal, nil
}

// RecalculateBalance fully recomputes one account's cached balance from its
// posted lines, netted against the account's normal side.
func (s *Service) RecalculateBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = s.recalculateBalance(ctx, tx, accountID)
		return err
	})
	return balance, err
}

func (s *Service) recalculateTouched(ctx context.Context, tx TxRepository, entry JournalEntry) error {
	for _, accountID := range entry.TouchedAccounts() {
		if _, err := s.recalculateBalance(ctx, tx, accountID); err != nil {
			return fmt.Errorf("recalculate account %d: %w", accountID, err)
		}
	}
	return nil
}

func (s *Service) recalculateBalance(ctx context.Context, tx TxRepository, accountID int64) (decimal.Decimal, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	debit, credit, err := tx.SumPostedLines(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := NetBalance(account.Type, debit, credit)
	if err := tx.UpdateAccountBalance(ctx, accountID, balance, s.now()); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// NetBalance nets gross debit/credit sums against the account type's normal
// side.
func NetBalance(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.NormalBalance() == SideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

func (s *Service) afterPosting(ctx context.Context, actorID int64, action string, entry JournalEntry) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   shared.EntityJournalEntry,
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"reference":    entry.Reference,
				"entry_type":   string(entry.EntryType),
				"total_debit":  entry.TotalDebit().StringFixed(2),
				"total_credit": entry.TotalCredit().StringFixed(2),
			},
			At: s.now(),
		})
	}
}

// GetEntry returns an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries returns journal entries, newest first.
func (s *Service) ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, limit, offset)
}

// GetAccount returns one chart-of-accounts node.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns the chart of accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// CreateAccountInput describes a new chart-of-accounts node.
type CreateAccountInput struct {
	Code        string
	Name        string
	Type        AccountType
	ParentID    *int64
	Description string
	IsBank      bool
	IsAR        bool
	IsAP        bool
}

// CreateAccount adds a chart-of-accounts node. Self-reference is the one
// cycle case rejected at creation; deeper cycles cannot form because parents
// must already exist.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	if input.Code == "" || input.Name == "" {
		return Account{}, errors.New("accounting: account code and name required")
	}
	if !input.Type.IsValid() {
		return Account{}, fmt.Errorf("accounting: invalid account type %q", input.Type)
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Code == input.Code {
				return ErrSelfParent
			}
		}
		var err error
		account, err = tx.InsertAccount(ctx, Account{
			Code:        input.Code,
			Name:        input.Name,
			Type:        input.Type,
			ParentID:    input.ParentID,
			Description: input.Description,
			IsBank:      input.IsBank,
			IsAR:        input.IsAR,
			IsAP:        input.IsAP,
			Balance:     decimal.Zero,
			IsActive:    true,
		})
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// ClosePeriod closes a fiscal period. One way; there is no reopen.
func (s *Service) ClosePeriod(ctx context.Context, periodID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ClosePeriod(ctx, periodID, s.now())
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "period.close",
			Entity:   shared.EntityFiscalPeriod,
			EntityID: fmt.Sprintf("%d", periodID),
			At:       s.now(),
		})
	}
	return nil
}

func reverseLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func withEntryID(entryID int64, lines []JournalLine) []JournalLine {
	out := make([]JournalLine, len(lines))
	copy(out, lines)
	for i := range out {
		out[i].EntryID = entryID
	}
	return out
}
