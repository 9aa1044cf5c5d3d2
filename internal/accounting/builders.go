package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceInput describes a sales invoice to turn into a journal entry.
// A nil Tax defaults to Subtotal * DefaultIVARate; an explicit amount,
// including zero for exempt invoices, is taken as-is.
type InvoiceInput struct {
	Date        time.Time
	Reference   string
	Description string
	Subtotal    decimal.Decimal
	Tax         *decimal.Decimal
	CreatedBy   int64
}

// PaymentInput describes a customer payment against receivables.
type PaymentInput struct {
	Date        time.Time
	Reference   string
	Description string
	Amount      decimal.Decimal
	CreatedBy   int64
}

// BillInput describes a vendor bill to record as payable. Tax follows
// the same nil-defaults rule as InvoiceInput.
type BillInput struct {
	Date        time.Time
	Reference   string
	Description string
	Subtotal    decimal.Decimal
	Tax         *decimal.Decimal
	CreatedBy   int64
}

func taxOrDefault(tax *decimal.Decimal, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if tax == nil {
		return subtotal.Mul(DefaultIVARate).Round(2), nil
	}
	if tax.IsNegative() {
		return decimal.Decimal{}, ErrNegativeAmount
	}
	return *tax, nil
}

// CreateInvoiceEntry builds a balanced draft for a sales invoice:
// AR debit for the total, revenue credit for the subtotal, IVA payable
// credit for the tax.
func (s *Service) CreateInvoiceEntry(ctx context.Context, input InvoiceInput) (JournalEntry, error) {
	if !input.Subtotal.IsPositive() {
		return JournalEntry{}, errors.New("accounting: invoice subtotal must be positive")
	}
	tax, err := taxOrDefault(input.Tax, input.Subtotal)
	if err != nil {
		return JournalEntry{}, err
	}
	total := input.Subtotal.Add(tax)

	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ar, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyAR)
		if err != nil {
			return err
		}
		revenue, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyRevenue)
		if err != nil {
			return err
		}
		lines := []JournalLine{
			{AccountID: ar, Debit: total, Description: "Accounts receivable"},
			{AccountID: revenue, Credit: input.Subtotal, Description: "Sales revenue"},
		}
		if tax.IsPositive() {
			ivaPayable, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyIVAPayable)
			if err != nil {
				return err
			}
			lines = append(lines, JournalLine{AccountID: ivaPayable, Credit: tax, Description: "IVA payable"})
		}
		entry, err = s.insertDraft(ctx, tx, input.Date, input.Reference, input.Description, EntryTypeInvoice, input.CreatedBy, lines)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// CreatePaymentEntry builds a balanced draft for a customer payment:
// bank debit, AR credit.
func (s *Service) CreatePaymentEntry(ctx context.Context, input PaymentInput) (JournalEntry, error) {
	if !input.Amount.IsPositive() {
		return JournalEntry{}, errors.New("accounting: payment amount must be positive")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bank, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyBank)
		if err != nil {
			return err
		}
		ar, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyAR)
		if err != nil {
			return err
		}
		lines := []JournalLine{
			{AccountID: bank, Debit: input.Amount, Description: "Bank deposit"},
			{AccountID: ar, Credit: input.Amount, Description: "Accounts receivable settled"},
		}
		entry, err = s.insertDraft(ctx, tx, input.Date, input.Reference, input.Description, EntryTypePayment, input.CreatedBy, lines)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// CreateBillEntry builds a balanced draft for a vendor bill: expense debit
// for the subtotal, IVA creditable debit for the tax, AP credit for the
// total.
func (s *Service) CreateBillEntry(ctx context.Context, input BillInput) (JournalEntry, error) {
	if !input.Subtotal.IsPositive() {
		return JournalEntry{}, errors.New("accounting: bill subtotal must be positive")
	}
	tax, err := taxOrDefault(input.Tax, input.Subtotal)
	if err != nil {
		return JournalEntry{}, err
	}
	total := input.Subtotal.Add(tax)

	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		expense, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyExpense)
		if err != nil {
			return err
		}
		ap, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyAP)
		if err != nil {
			return err
		}
		lines := []JournalLine{
			{AccountID: expense, Debit: input.Subtotal, Description: "Operating expense"},
		}
		if tax.IsPositive() {
			ivaCredit, err := tx.ResolveMapping(ctx, MappingModuleBilling, MappingKeyIVACredit)
			if err != nil {
				return err
			}
			lines = append(lines, JournalLine{AccountID: ivaCredit, Debit: tax, Description: "IVA creditable"})
		}
		lines = append(lines, JournalLine{AccountID: ap, Credit: total, Description: "Accounts payable"})
		entry, err = s.insertDraft(ctx, tx, input.Date, input.Reference, input.Description, EntryTypeBill, input.CreatedBy, lines)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *Service) insertDraft(ctx context.Context, tx TxRepository, date time.Time, reference, description string, entryType EntryType, createdBy int64, lines []JournalLine) (JournalEntry, error) {
	entry := JournalEntry{
		Date:        date,
		Reference:   reference,
		Description: description,
		EntryType:   entryType,
		CreatedBy:   createdBy,
		Lines:       lines,
	}
	// Builders always produce balanced drafts; catch programming errors
	// before they hit the database.
	if err := entry.CleanForPosting(); err != nil {
		return JournalEntry{}, err
	}
	entry.SourceID = uuid.New()
	inserted, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, inserted.ID, lines); err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines = withEntryID(inserted.ID, lines)
	return inserted, nil
}
