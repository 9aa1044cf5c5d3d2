package delivery

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vetnova/vetnova/internal/platform/httpx"
)

// Handler exposes the delivery API over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers delivery routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/deliveries", h.createDelivery)
	r.Get("/deliveries", h.listDeliveries)
	r.Get("/deliveries/{id}", h.getDelivery)
	r.Get("/deliveries/{id}/history", h.listHistory)

	r.Post("/deliveries/{id}/assign", h.assignDriver)
	r.Post("/deliveries/{id}/unassign", h.unassignDriver)
	r.Post("/deliveries/{id}/pickup", h.transitionTo(StatusPickedUp))
	r.Post("/deliveries/{id}/out-for-delivery", h.transitionTo(StatusOutForDelivery))
	r.Post("/deliveries/{id}/arrive", h.transitionTo(StatusArrived))
	r.Post("/deliveries/{id}/deliver", h.transitionTo(StatusDelivered))
	r.Post("/deliveries/{id}/return", h.transitionTo(StatusReturned))
	r.Post("/deliveries/{id}/fail", h.failDelivery)
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "create delivery", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "list deliveries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rows, err := h.service.History(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "list history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) assignDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req AssignDriverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.AssignDriver(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "assign driver", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) unassignDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeTransition(w, r)
	if !ok {
		return
	}
	d, err := h.service.Unassign(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "unassign driver", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// transitionTo builds a handler for one driver-side status update endpoint.
func (h *Handler) transitionTo(target Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		req, ok := h.decodeTransition(w, r)
		if !ok {
			return
		}

		var (
			d   Delivery
			err error
		)
		switch target {
		case StatusPickedUp:
			d, err = h.service.MarkPickedUp(r.Context(), id, req)
		case StatusOutForDelivery:
			d, err = h.service.MarkOutForDelivery(r.Context(), id, req)
		case StatusArrived:
			d, err = h.service.MarkArrived(r.Context(), id, req)
		case StatusDelivered:
			d, err = h.service.MarkDelivered(r.Context(), id, req)
		case StatusReturned:
			d, err = h.service.MarkReturned(r.Context(), id, req)
		default:
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown transition")
			return
		}
		if err != nil {
			h.respondError(w, r, "transition "+string(target), err)
			return
		}
		httpx.JSON(w, http.StatusOK, d)
	}
}

func (h *Handler) failDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req FailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	d, err := h.service.MarkFailed(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "fail delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeTransition(w http.ResponseWriter, r *http.Request) (TransitionRequest, bool) {
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var invalid *InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", invalid.Error())
	case errors.Is(err, ErrDeliveryNotFound), errors.Is(err, ErrDriverNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDriverUnavailable), errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Process", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseListRequest(r *http.Request) (ListDeliveriesRequest, error) {
	q := r.URL.Query()
	req := ListDeliveriesRequest{Limit: 50}

	if v := q.Get("status"); v != "" {
		st := Status(v)
		if !st.IsValid() {
			return req, errors.New("delivery: unknown status filter")
		}
		req.Status = &st
	}
	if v := q.Get("driver_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return req, errors.New("delivery: driver_id must be a positive integer")
		}
		req.DriverID = &id
	}
	if v := q.Get("scheduled_date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return req, errors.New("delivery: scheduled_date must be YYYY-MM-DD")
		}
		req.ScheduledDate = &d
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, errors.New("delivery: limit must be a non-negative integer")
		}
		req.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, errors.New("delivery: offset must be a non-negative integer")
		}
		req.Offset = n
	}
	return req, nil
}
