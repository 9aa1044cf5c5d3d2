package accounting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vetnova/vetnova/internal/platform/httpx"
)

// Handler exposes the ledger API over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	reporter  *Reporter
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, reporter *Reporter) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		reporter:  reporter,
		validator: validator.New(),
	}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.createEntry)
	r.Get("/entries", h.listEntries)
	r.Get("/entries/{id}", h.getEntry)
	r.Put("/entries/{id}/lines", h.replaceLines)
	r.Post("/entries/{id}/post", h.postEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)

	r.Post("/invoices", h.createInvoice)
	r.Post("/payments", h.createPayment)
	r.Post("/bills", h.createBill)

	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}", h.getAccount)
	r.Post("/accounts", h.createAccount)
	r.Post("/accounts/{id}/recalculate", h.recalculateAccount)

	r.Post("/periods/{id}/close", h.closePeriod)

	r.Get("/reports/trial-balance", h.trialBalance)
	r.Get("/reports/income-statement", h.incomeStatement)
}

type entryLineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=500"`
}

type createEntryRequest struct {
	Date        string             `json:"date" validate:"required"`
	Reference   string             `json:"reference" validate:"required,max=100"`
	Description string             `json:"description" validate:"max=500"`
	EntryType   string             `json:"entry_type" validate:"omitempty,oneof=manual invoice payment bill reversal"`
	CreatedBy   int64              `json:"created_by" validate:"required,gt=0"`
	Lines       []entryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := h.parseDate(w, req.Date, "date")
	if !ok {
		return
	}

	lines := make([]JournalLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, JournalLine{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		})
	}

	entry, err := h.service.CreateDraft(r.Context(), DraftEntryInput{
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		EntryType:   EntryType(req.EntryType),
		CreatedBy:   req.CreatedBy,
		Lines:       lines,
	})
	if err != nil {
		h.respondError(w, "create entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	entries, err := h.service.ListEntries(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

type replaceLinesRequest struct {
	Lines []entryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req replaceLinesRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]JournalLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, JournalLine{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		})
	}
	entry, err := h.service.ReplaceDraftLines(r.Context(), id, lines)
	if err != nil {
		h.respondError(w, "replace lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type actorRequest struct {
	ActorID int64  `json:"actor_id" validate:"required,gt=0"`
	Memo    string `json:"memo,omitempty" validate:"max=500"`
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Post(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondError(w, "post entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if !h.decode(w, r, &req) {
		return
	}
	reversal, err := h.service.Reverse(r.Context(), id, req.ActorID, req.Memo)
	if err != nil {
		h.respondError(w, "reverse entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

// Tax is a pointer so callers can distinguish "apply the default rate"
// (field omitted) from an explicit zero on exempt documents.
type invoiceRequest struct {
	Date        string           `json:"date" validate:"required"`
	Reference   string           `json:"reference" validate:"required,max=100"`
	Description string           `json:"description" validate:"max=500"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	Tax         *decimal.Decimal `json:"tax"`
	CreatedBy   int64            `json:"created_by" validate:"required,gt=0"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := h.parseDate(w, req.Date, "date")
	if !ok {
		return
	}
	entry, err := h.service.CreateInvoiceEntry(r.Context(), InvoiceInput{
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		Subtotal:    req.Subtotal,
		Tax:         req.Tax,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.respondError(w, "create invoice entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type paymentRequest struct {
	Date        string          `json:"date" validate:"required"`
	Reference   string          `json:"reference" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedBy   int64           `json:"created_by" validate:"required,gt=0"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := h.parseDate(w, req.Date, "date")
	if !ok {
		return
	}
	entry, err := h.service.CreatePaymentEntry(r.Context(), PaymentInput{
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		Amount:      req.Amount,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.respondError(w, "create payment entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := h.parseDate(w, req.Date, "date")
	if !ok {
		return
	}
	entry, err := h.service.CreateBillEntry(r.Context(), BillInput{
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		Subtotal:    req.Subtotal,
		Tax:         req.Tax,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		h.respondError(w, "create bill entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": accounts})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondError(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type createAccountRequest struct {
	Code        string `json:"code" validate:"required,max=20"`
	Name        string `json:"name" validate:"required,max=200"`
	Type        string `json:"account_type" validate:"required,oneof=asset liability equity revenue expense"`
	ParentID    *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
	Description string `json:"description" validate:"max=500"`
	IsBank      bool   `json:"is_bank"`
	IsAR        bool   `json:"is_ar"`
	IsAP        bool   `json:"is_ap"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Code:        req.Code,
		Name:        req.Name,
		Type:        AccountType(req.Type),
		ParentID:    req.ParentID,
		Description: req.Description,
		IsBank:      req.IsBank,
		IsAR:        req.IsAR,
		IsAP:        req.IsAP,
	})
	if err != nil {
		h.respondError(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) recalculateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.service.RecalculateBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, "recalculate balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "balance": balance})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ClosePeriod(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period_id": id, "closed": true})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, ok := h.parseDate(w, v, "as_of")
		if !ok {
			return
		}
		asOf = parsed
	}
	tb, err := h.reporter.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	from, ok := h.parseDate(w, r.URL.Query().Get("from"), "from")
	if !ok {
		return
	}
	to, ok := h.parseDate(w, r.URL.Query().Get("to"), "to")
	if !ok {
		return
	}
	if to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must not precede from")
		return
	}
	stmt, err := h.reporter.IncomeStatement(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "income statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) parseDate(w http.ResponseWriter, value, field string) (time.Time, bool) {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrPeriodNotFound),
		errors.Is(err, ErrMappingNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateReference):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrAlreadyPosted),
		errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrEmptyLine),
		errors.Is(err, ErrBothSides),
		errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrNotPosted),
		errors.Is(err, ErrSelfParent):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Process", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
