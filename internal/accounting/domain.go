package accounting

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// BalanceSide is the side an account type carries a positive balance on.
type BalanceSide string

const (
	SideDebit  BalanceSide = "debit"
	SideCredit BalanceSide = "credit"
)

// IsValid checks the account type is known.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// NormalBalance returns the normal side for the type: debit for assets and
// expenses, credit for the rest.
func (t AccountType) NormalBalance() BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// EntryType tags the business origin of a journal entry.
type EntryType string

const (
	EntryTypeManual   EntryType = "manual"
	EntryTypeInvoice  EntryType = "invoice"
	EntryTypePayment  EntryType = "payment"
	EntryTypeBill     EntryType = "bill"
	EntryTypeReversal EntryType = "reversal"
)

// Account models a chart of accounts node. Balance is a cache over posted
// journal lines, recomputed on every posting that touches the account.
type Account struct {
	ID          int64           `json:"id" db:"id"`
	Code        string          `json:"code" db:"code"`
	Name        string          `json:"name" db:"name"`
	Type        AccountType     `json:"account_type" db:"account_type"`
	ParentID    *int64          `json:"parent_id,omitempty" db:"parent_id"`
	Description string          `json:"description,omitempty" db:"description"`
	IsBank      bool            `json:"is_bank" db:"is_bank"`
	IsAR        bool            `json:"is_ar" db:"is_ar"`
	IsAP        bool            `json:"is_ap" db:"is_ap"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	BalanceAt   *time.Time      `json:"balance_updated_at,omitempty" db:"balance_updated_at"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// JournalEntry is the header of a double-entry posting. Entries start as
// drafts and become immutable once posted.
type JournalEntry struct {
	ID                int64         `json:"id" db:"id"`
	Date              time.Time     `json:"date" db:"date"`
	Reference         string        `json:"reference" db:"reference"`
	Description       string        `json:"description" db:"description"`
	EntryType         EntryType     `json:"entry_type" db:"entry_type"`
	SourceID          uuid.UUID     `json:"source_id" db:"source_id"`
	IsPosted          bool          `json:"is_posted" db:"is_posted"`
	PostedAt          *time.Time    `json:"posted_at,omitempty" db:"posted_at"`
	PostedBy          *int64        `json:"posted_by,omitempty" db:"posted_by"`
	ReversedByEntryID *int64        `json:"reversed_by_entry_id,omitempty" db:"reversed_by_entry_id"`
	CreatedBy         int64         `json:"created_by" db:"created_by"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
	Lines             []JournalLine `json:"lines,omitempty" db:"-"`
}

// JournalLine is one debit or credit against an account. Exactly one of the
// two amounts is positive; never both, never neither.
type JournalLine struct {
	ID          int64           `json:"id" db:"id"`
	EntryID     int64           `json:"entry_id" db:"entry_id"`
	AccountID   int64           `json:"account_id" db:"account_id"`
	Debit       decimal.Decimal `json:"debit" db:"debit"`
	Credit      decimal.Decimal `json:"credit" db:"credit"`
	Description string          `json:"description,omitempty" db:"description"`
}

// FiscalPeriod is a posting window. Posting into a closed period is refused;
// there is no reopen path.
type FiscalPeriod struct {
	ID        int64      `json:"id" db:"id"`
	Code      string     `json:"code" db:"code"`
	StartDate time.Time  `json:"start_date" db:"start_date"`
	EndDate   time.Time  `json:"end_date" db:"end_date"`
	IsClosed  bool       `json:"is_closed" db:"is_closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Contains reports whether the date falls inside the period window.
func (p FiscalPeriod) Contains(date time.Time) bool {
	day := date.Truncate(24 * time.Hour)
	return !day.Before(p.StartDate) && !day.After(p.EndDate)
}

// AccountMapping links a module/key pair to a ledger account so entry
// builders never hard-code account ids.
type AccountMapping struct {
	Module    string    `json:"module" db:"module"`
	Key       string    `json:"key" db:"key"`
	AccountID int64     `json:"account_id" db:"account_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Mapping keys used by the entry builders.
const (
	MappingModuleBilling = "billing"

	MappingKeyAR         = "accounts_receivable"
	MappingKeyAP         = "accounts_payable"
	MappingKeyRevenue    = "sales_revenue"
	MappingKeyBank       = "bank"
	MappingKeyIVAPayable = "iva_payable"
	MappingKeyIVACredit  = "iva_creditable"
	MappingKeyExpense    = "operating_expense"
)

var (
	// ErrUnbalanced indicates total debits != total credits.
	ErrUnbalanced = errors.New("accounting: entry debits and credits must balance")
	// ErrEmptyLine indicates a line with neither debit nor credit.
	ErrEmptyLine = errors.New("accounting: line requires a debit or a credit")
	// ErrBothSides indicates a line with both debit and credit set.
	ErrBothSides = errors.New("accounting: line cannot carry both debit and credit")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("accounting: amounts cannot be negative")
	// ErrAlreadyPosted indicates a second post attempt.
	ErrAlreadyPosted = errors.New("accounting: entry already posted")
	// ErrNotPosted indicates an operation that requires a posted entry.
	ErrNotPosted = errors.New("accounting: entry not posted")
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = errors.New("accounting: entry already reversed")
	// ErrPeriodClosed indicates posting into a closed fiscal period.
	ErrPeriodClosed = errors.New("accounting: fiscal period is closed")
	// ErrPeriodNotFound indicates no period covers the entry date.
	ErrPeriodNotFound = errors.New("accounting: no fiscal period covers date")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("accounting: journal entry not found")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrMappingNotFound indicates a missing account mapping.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrSelfParent indicates an account referencing itself as parent.
	ErrSelfParent = errors.New("accounting: account cannot be its own parent")
	// ErrOutOfBalance indicates the trial balance totals diverge, which
	// means posted data violates the double-entry invariant.
	ErrOutOfBalance = errors.New("accounting: trial balance out of balance")
)

// Clean validates the single-side invariant for one line.
func (l JournalLine) Clean() error {
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return ErrNegativeAmount
	}
	debit := l.Debit.IsPositive()
	credit := l.Credit.IsPositive()
	if debit && credit {
		return ErrBothSides
	}
	if !debit && !credit {
		return ErrEmptyLine
	}
	return nil
}

// TotalDebit sums the debit column.
func (e JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit column.
func (e JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// IsBalanced reports whether debits equal credits.
func (e JournalEntry) IsBalanced() bool {
	return e.TotalDebit().Equal(e.TotalCredit())
}

// CleanForPosting validates everything required before an entry may post.
// Draft entries may be unbalanced; posted ones never.
func (e JournalEntry) CleanForPosting() error {
	if len(e.Lines) < 2 {
		return errors.New("accounting: entry requires at least two lines")
	}
	for idx, line := range e.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if err := line.Clean(); err != nil {
			return fmt.Errorf("line %d: %w", idx, err)
		}
	}
	if !e.IsBalanced() {
		return fmt.Errorf("%w: debit %s vs credit %s", ErrUnbalanced,
			e.TotalDebit().StringFixed(2), e.TotalCredit().StringFixed(2))
	}
	return nil
}

// TouchedAccounts returns the distinct account ids across the lines.
func (e JournalEntry) TouchedAccounts() []int64 {
	seen := make(map[int64]struct{}, len(e.Lines))
	out := make([]int64, 0, len(e.Lines))
	for _, l := range e.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		out = append(out, l.AccountID)
	}
	return out
}
