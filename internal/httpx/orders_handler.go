package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type Placer interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (checkout.Result, error)
}

// Cache is the Redis shortcut in front of the store; redisx.OrderCache
// implements it. Errors are logged and otherwise ignored.
type Cache interface {
	Get(ctx context.Context, bookingID string) (orders.Order, bool, error)
	Put(ctx context.Context, o orders.Order) error
	Invalidate(ctx context.Context, bookingID string) error
	RememberPlacement(ctx context.Context, externalID, bookingID string) error
	PlacedBookingID(ctx context.Context, externalID string) (string, bool, error)
}

type OrdersHandler struct {
	Checkout  Placer
	Reader    orders.Reader
	Admin     orders.Admin
	Incidents orders.IncidentStore
	Cache     Cache // optional
	Log       *zap.Logger
	Now       func() time.Time
}

type placeOrderResp struct {
	orders.Order
	Idempotent bool `json:"idempotent"`
}

type errorResp struct {
	Error  string            `json:"error"`
	Stage  string            `json:"stage,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{bookingID}", h.getOrder)
	r.Patch("/orders/{bookingID}/paid", h.setPaid)
	r.Delete("/orders/{bookingID}", h.deleteOrder)
	r.Post("/orders/{bookingID}/restore", h.restoreOrder)
	r.Get("/products", h.listProducts)
	r.Get("/incidents", h.listIncidents)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps a failure kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, orders.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrPromotionNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, orders.ErrGenerationExhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	resp := errorResp{Error: err.Error()}
	if code == http.StatusInternalServerError {
		// driver errors stay in the log
		h.Log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		resp.Error = "internal error"
		if errors.Is(err, orders.ErrCompensationFailed) {
			resp.Error = orders.ErrCompensationFailed.Error()
		}
	}
	var fail *checkout.Failure
	if errors.As(err, &fail) {
		resp.Stage = string(fail.Stage)
	}
	var verr *orders.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, code, resp)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	req.TraceID = middleware.GetReqID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast path only; the store's unique external_id decides.
	if req.ExternalID != "" && h.Cache != nil {
		if id, ok, err := h.Cache.PlacedBookingID(ctx, req.ExternalID); err != nil {
			h.Log.Warn("idempotency lookup failed", zap.Error(err))
		} else if ok {
			if o, err := h.Reader.GetOrder(ctx, id); err == nil {
				writeJSON(w, http.StatusOK, placeOrderResp{Order: o, Idempotent: true})
				return
			}
		}
	}

	res, err := h.Checkout.PlaceOrder(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Cache != nil {
		if req.ExternalID != "" {
			if err := h.Cache.RememberPlacement(ctx, req.ExternalID, res.Order.BookingTrxID); err != nil {
				h.Log.Warn("remember placement failed", zap.Error(err))
			}
		}
		if err := h.Cache.Put(ctx, res.Order); err != nil {
			h.Log.Warn("cache order failed", zap.Error(err))
		}
	}

	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, placeOrderResp{Order: res.Order, Idempotent: res.Idempotent})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if o, ok, err := h.Cache.Get(ctx, id); err == nil && ok {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Reader.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Put(ctx, o)
	}
	writeJSON(w, http.StatusOK, o)
}

func parseListFilter(r *http.Request) (orders.ListFilter, error) {
	q := r.URL.Query()
	var (
		f    orders.ListFilter
		verr orders.ValidationError
	)
	if v := q.Get("paid"); v != "" {
		paid, err := strconv.ParseBool(v)
		if err != nil {
			verr.Add("paid", "must be true or false")
		}
		f.Paid = &paid
	}
	switch t := orders.Trashed(q.Get("trashed")); t {
	case orders.WithoutTrashed, orders.WithTrashed, orders.OnlyTrashed:
		f.Trashed = t
	default:
		verr.Add("trashed", "must be with or only")
	}
	f.Search = q.Get("q")
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr.Add(name, "must be a non-negative integer")
			continue
		}
		*dst = n
	}
	if !verr.Empty() {
		return orders.ListFilter{}, &verr
	}
	return f.Normalize(), nil
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Reader.ListOrders(ctx, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

type setPaidReq struct {
	IsPaid *bool `json:"is_paid"`
}

func (h *OrdersHandler) setPaid(w http.ResponseWriter, r *http.Request) {
	var req setPaidReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	if req.IsPaid == nil {
		h.writeError(w, r, &orders.ValidationError{Fields: map[string]string{"is_paid": "is required"}})
		return
	}
	id := chi.URLParam(r, "bookingID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Admin.SetPaid(ctx, id, *req.IsPaid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(ctx, id)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Admin.SoftDelete(ctx, id, h.now()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) restoreOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bookingID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Admin.Restore(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(ctx, id)
	o, err := h.Reader.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Reader.ListProducts(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) listIncidents(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = orders.IncidentOpen
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Incidents.ListIncidents(ctx, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Incident{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) invalidate(ctx context.Context, id string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, id); err != nil {
		h.Log.Warn("cache invalidate failed", zap.String("booking_trx_id", id), zap.Error(err))
	}
}

func (h *OrdersHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
