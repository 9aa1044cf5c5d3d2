package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetnova/vetnova/internal/shared"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// fakeLedger implements RepositoryPort and TxRepository over in-memory
// state. WithTx snapshots and restores on error, mirroring the SQL
// transaction the real repository runs.
type fakeLedger struct {
	entries     map[int64]JournalEntry
	accounts    map[int64]Account
	periods     []FiscalPeriod
	mappings    map[string]int64
	nextEntryID int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		entries:     make(map[int64]JournalEntry),
		accounts:    make(map[int64]Account),
		mappings:    make(map[string]int64),
		nextEntryID: 1,
	}
}

func (f *fakeLedger) addAccount(id int64, code string, t AccountType) {
	f.accounts[id] = Account{ID: id, Code: code, Name: code, Type: t, IsActive: true}
}

func (f *fakeLedger) addPeriod(code string, start, end time.Time, closed bool) {
	f.periods = append(f.periods, FiscalPeriod{
		ID: int64(len(f.periods) + 1), Code: code,
		StartDate: start, EndDate: end, IsClosed: closed,
	})
}

func (f *fakeLedger) addMapping(module, key string, accountID int64) {
	f.mappings[module+"/"+key] = accountID
}

func (f *fakeLedger) snapshot() (map[int64]JournalEntry, map[int64]Account) {
	entries := make(map[int64]JournalEntry, len(f.entries))
	for k, v := range f.entries {
		lines := make([]JournalLine, len(v.Lines))
		copy(lines, v.Lines)
		v.Lines = lines
		entries[k] = v
	}
	accounts := make(map[int64]Account, len(f.accounts))
	for k, v := range f.accounts {
		accounts[k] = v
	}
	return entries, accounts
}

func (f *fakeLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	entries, accounts := f.snapshot()
	if err := fn(ctx, f); err != nil {
		f.entries = entries
		f.accounts = accounts
		return err
	}
	return nil
}

func (f *fakeLedger) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeLedger) ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeLedger) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, a := range f.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeLedger) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	for _, existing := range f.entries {
		if existing.Reference == e.Reference {
			return JournalEntry{}, ErrDuplicateReference
		}
	}
	e.ID = f.nextEntryID
	f.nextEntryID++
	f.entries[e.ID] = e
	return e, nil
}

func (f *fakeLedger) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	e, ok := f.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	for _, l := range lines {
		l.EntryID = entryID
		e.Lines = append(e.Lines, l)
	}
	f.entries[entryID] = e
	return nil
}

func (f *fakeLedger) ReplaceLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	e, ok := f.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.Lines = nil
	f.entries[entryID] = e
	return f.InsertLines(ctx, entryID, lines)
}

func (f *fakeLedger) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return f.GetEntry(ctx, id)
}

func (f *fakeLedger) MarkPosted(ctx context.Context, id int64, at time.Time, actorID int64) error {
	e, ok := f.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if e.IsPosted {
		return ErrAlreadyPosted
	}
	e.IsPosted = true
	e.PostedAt = &at
	e.PostedBy = &actorID
	f.entries[id] = e
	return nil
}

func (f *fakeLedger) SetReversedBy(ctx context.Context, entryID, reversalID int64) error {
	e, ok := f.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	if e.ReversedByEntryID != nil {
		return ErrAlreadyReversed
	}
	e.ReversedByEntryID = &reversalID
	f.entries[entryID] = e
	return nil
}

func (f *fakeLedger) FindPeriodForDate(ctx context.Context, date time.Time) (FiscalPeriod, error) {
	for _, p := range f.periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return FiscalPeriod{}, ErrPeriodNotFound
}

func (f *fakeLedger) ClosePeriod(ctx context.Context, periodID int64, at time.Time) error {
	for i, p := range f.periods {
		if p.ID != periodID {
			continue
		}
		if p.IsClosed {
			return ErrPeriodClosed
		}
		f.periods[i].IsClosed = true
		f.periods[i].ClosedAt = &at
		return nil
	}
	return ErrPeriodNotFound
}

func (f *fakeLedger) InsertAccount(ctx context.Context, a Account) (Account, error) {
	a.ID = int64(len(f.accounts) + 1)
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeLedger) SumPostedLines(ctx context.Context, accountID int64) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range f.entries {
		if !e.IsPosted {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != accountID {
				continue
			}
			debit = debit.Add(l.Debit)
			credit = credit.Add(l.Credit)
		}
	}
	return debit, credit, nil
}

func (f *fakeLedger) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal, at time.Time) error {
	a, ok := f.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.Balance = balance
	a.BalanceAt = &at
	f.accounts[accountID] = a
	return nil
}

func (f *fakeLedger) ResolveMapping(ctx context.Context, module, key string) (int64, error) {
	id, ok := f.mappings[module+"/"+key]
	if !ok {
		return 0, ErrMappingNotFound
	}
	return id, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

type countingCache struct {
	bumps int
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func ledgerClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}
}

// newTestLedger builds a fake with a minimal chart of accounts and an open
// March 2026 period.
func newTestLedger() *fakeLedger {
	f := newFakeLedger()
	f.addAccount(1, "1200", AccountTypeAsset)   // AR
	f.addAccount(2, "4000", AccountTypeRevenue) // revenue
	f.addAccount(3, "2100", AccountTypeLiability)
	f.addAccount(4, "1000", AccountTypeAsset) // bank
	f.addAccount(5, "5000", AccountTypeExpense)
	f.addAccount(6, "2000", AccountTypeLiability) // AP
	f.addPeriod("2026-03", day(2026, 3, 1), day(2026, 3, 31), false)
	return f
}

func newTestService(f *fakeLedger) (*Service, *recordingAudit, *countingCache) {
	audit := &recordingAudit{}
	cache := &countingCache{}
	svc := NewService(f, audit, cache)
	svc.WithNow(ledgerClock())
	return svc, audit, cache
}

func balancedDraft(t *testing.T, svc *Service, reference string) JournalEntry {
	t.Helper()
	entry, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2026, 3, 10),
		Reference: reference,
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("1160.00")},
			{AccountID: 2, Credit: amount("1000.00")},
			{AccountID: 3, Credit: amount("160.00")},
		},
	})
	require.NoError(t, err)
	return entry
}

func TestCreateDraftAllowsUnbalanced(t *testing.T) {
	svc, _, _ := newTestService(newTestLedger())
	entry, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2026, 3, 10),
		Reference: "JE-001",
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("100.00")},
		},
	})
	require.NoError(t, err)
	assert.False(t, entry.IsPosted)
	assert.Equal(t, EntryTypeManual, entry.EntryType)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", entry.SourceID.String())
}

func TestCreateDraftRejectsBadLines(t *testing.T) {
	svc, _, _ := newTestService(newTestLedger())
	_, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2026, 3, 10),
		Reference: "JE-002",
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("10"), Credit: amount("10")},
		},
	})
	assert.ErrorIs(t, err, ErrBothSides)
}

func TestPostHappyPath(t *testing.T) {
	f := newTestLedger()
	svc, audit, cache := newTestService(f)
	entry := balancedDraft(t, svc, "INV-100")

	posted, err := svc.Post(context.Background(), entry.ID, 9)
	require.NoError(t, err)
	assert.True(t, posted.IsPosted)
	require.NotNil(t, posted.PostedBy)
	assert.Equal(t, int64(9), *posted.PostedBy)

	// Balances recomputed inside the posting transaction.
	ar := f.accounts[1]
	assert.True(t, ar.Balance.Equal(amount("1160.00")), "AR balance %s", ar.Balance)
	revenue := f.accounts[2]
	assert.True(t, revenue.Balance.Equal(amount("1000.00")))
	iva := f.accounts[3]
	assert.True(t, iva.Balance.Equal(amount("160.00")))

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "journal.post", audit.logs[0].Action)
	assert.Equal(t, 1, cache.bumps)
}

func TestPostTwiceFails(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry := balancedDraft(t, svc, "INV-101")

	_, err := svc.Post(context.Background(), entry.ID, 9)
	require.NoError(t, err)
	before := f.accounts[1].Balance

	_, err = svc.Post(context.Background(), entry.ID, 9)
	assert.ErrorIs(t, err, ErrAlreadyPosted)
	assert.True(t, f.accounts[1].Balance.Equal(before), "balance changed on double post")
}

func TestPostUnbalancedFails(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2026, 3, 10),
		Reference: "JE-003",
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("100.00")},
			{AccountID: 2, Credit: amount("99.00")},
		},
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, 9)
	assert.ErrorIs(t, err, ErrUnbalanced)
	assert.False(t, f.entries[entry.ID].IsPosted)
	assert.True(t, f.accounts[1].Balance.IsZero())
}

func TestPostIntoClosedPeriodFails(t *testing.T) {
	f := newTestLedger()
	f.addPeriod("2026-02", day(2026, 2, 1), day(2026, 2, 28), true)
	svc, _, _ := newTestService(f)

	entry, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2026, 2, 15),
		Reference: "JE-004",
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("50.00")},
			{AccountID: 2, Credit: amount("50.00")},
		},
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, 9)
	assert.ErrorIs(t, err, ErrPeriodClosed)
	assert.False(t, f.entries[entry.ID].IsPosted)
}

func TestPostWithoutPeriodFails(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2025, 12, 1),
		Reference: "JE-005",
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("50.00")},
			{AccountID: 2, Credit: amount("50.00")},
		},
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, 9)
	assert.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestReverseCreatesCounterEntry(t *testing.T) {
	f := newTestLedger()
	svc, audit, _ := newTestService(f)
	entry := balancedDraft(t, svc, "INV-102")
	_, err := svc.Post(context.Background(), entry.ID, 9)
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), entry.ID, 9, "")
	require.NoError(t, err)
	assert.True(t, reversal.IsPosted)
	assert.Equal(t, "INV-102-REV", reversal.Reference)
	assert.Equal(t, EntryTypeReversal, reversal.EntryType)
	assert.Equal(t, "Reversal of INV-102", reversal.Description)

	// Lines swapped.
	require.Len(t, reversal.Lines, 3)
	assert.True(t, reversal.Lines[0].Credit.Equal(amount("1160.00")))
	assert.True(t, reversal.Lines[0].Debit.IsZero())

	// Original now linked, balances net to zero.
	original := f.entries[entry.ID]
	require.NotNil(t, original.ReversedByEntryID)
	assert.Equal(t, reversal.ID, *original.ReversedByEntryID)
	assert.True(t, f.accounts[1].Balance.IsZero())
	assert.True(t, f.accounts[2].Balance.IsZero())

	require.Len(t, audit.logs, 2)
	assert.Equal(t, "journal.reverse", audit.logs[1].Action)
}

func TestReverseUnpostedFails(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry := balancedDraft(t, svc, "INV-103")

	_, err := svc.Reverse(context.Background(), entry.ID, 9, "")
	assert.ErrorIs(t, err, ErrNotPosted)
}

func TestReverseTwiceFails(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry := balancedDraft(t, svc, "INV-104")
	_, err := svc.Post(context.Background(), entry.ID, 9)
	require.NoError(t, err)
	_, err = svc.Reverse(context.Background(), entry.ID, 9, "")
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), entry.ID, 9, "")
	assert.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReplaceDraftLines(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry, err := svc.CreateDraft(context.Background(), DraftEntryInput{
		Date:      day(2026, 3, 10),
		Reference: "JE-006",
		CreatedBy: 1,
		Lines: []JournalLine{
			{AccountID: 1, Debit: amount("100.00")},
			{AccountID: 2, Credit: amount("90.00")},
		},
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), entry.ID, 9)
	require.ErrorIs(t, err, ErrUnbalanced)

	fixed, err := svc.ReplaceDraftLines(context.Background(), entry.ID, []JournalLine{
		{AccountID: 1, Debit: amount("100.00")},
		{AccountID: 2, Credit: amount("100.00")},
	})
	require.NoError(t, err)
	assert.Len(t, fixed.Lines, 2)

	_, err = svc.Post(context.Background(), entry.ID, 9)
	assert.NoError(t, err)
}

func TestReplaceLinesOnPostedEntryFails(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)
	entry := balancedDraft(t, svc, "INV-105")
	_, err := svc.Post(context.Background(), entry.ID, 9)
	require.NoError(t, err)

	_, err = svc.ReplaceDraftLines(context.Background(), entry.ID, []JournalLine{
		{AccountID: 1, Debit: amount("1.00")},
		{AccountID: 2, Credit: amount("1.00")},
	})
	assert.ErrorIs(t, err, ErrAlreadyPosted)
}

func TestClosePeriodThenPostFails(t *testing.T) {
	f := newTestLedger()
	svc, audit, _ := newTestService(f)
	entry := balancedDraft(t, svc, "INV-106")

	require.NoError(t, svc.ClosePeriod(context.Background(), 1, 9))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "period.close", audit.logs[0].Action)

	_, err := svc.Post(context.Background(), entry.ID, 9)
	assert.ErrorIs(t, err, ErrPeriodClosed)

	// Closing twice is refused.
	assert.ErrorIs(t, svc.ClosePeriod(context.Background(), 1, 9), ErrPeriodClosed)
}

func TestCreateAccountValidation(t *testing.T) {
	f := newTestLedger()
	svc, _, _ := newTestService(f)

	_, err := svc.CreateAccount(context.Background(), CreateAccountInput{Code: "9999", Name: "Misc", Type: AccountType("weird")})
	assert.Error(t, err)

	account, err := svc.CreateAccount(context.Background(), CreateAccountInput{Code: "1100", Name: "Petty cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	assert.True(t, account.IsActive)
}
