package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-saga.git/internal/orders"
	"github.com/ariefcatur/go-order-saga.git/internal/redisx"
	"github.com/ariefcatur/go-order-saga.git/internal/saga"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type ItemInput struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Currency       string `json:"currency"`
}

type CreateOrderReq struct {
	ExternalID string      `json:"external_id"`
	CustomerID string      `json:"customer_id"`
	Items      []ItemInput `json:"items"`
}

type CreateOrderResp struct {
	OrderID    string `json:"order_id"`
	SagaID     string `json:"saga_id"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Idempotent bool   `json:"idempotent"`
}

type OrdersHandler struct {
	Store      orders.Store
	PubCreated saga.Publisher // order.created.v1
	Redis      *redis.Client
	Service    string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// createOrder validates the request synchronously (validation errors never
// reach the saga), persists the PENDING order and kicks the saga off with
// order.created.v1.
func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	items := make([]orders.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.Item{
			ProductID:      it.ProductID,
			Qty:            it.Qty,
			UnitPriceCents: it.UnitPriceCents,
			Currency:       it.Currency,
		})
	}

	o, err := orders.New(req.CustomerID, req.ExternalID, items)
	if err != nil {
		var invalidItem *orders.InvalidItemError
		var mismatch *orders.CurrencyMismatchError
		switch {
		case errors.Is(err, orders.ErrEmptyOrder), errors.As(err, &invalidItem), errors.As(err, &mismatch):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stored, existed, err := h.Store.Create(ctx, o)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	o = stored

	idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
	_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, statusKey, string(o.Status), redisx.TTLStatusCache).Err()

	if !existed {
		evItems := make([]saga.OrderItem, 0, len(o.Items))
		for _, it := range o.Items {
			evItems = append(evItems, saga.OrderItem{ProductID: it.ProductID, Qty: it.Qty, UnitPriceCents: it.UnitPriceCents})
		}
		saga.Emit(h.PubCreated, saga.EventOrderCreated, o.ID, o.SagaID, h.Service, r.Header.Get("X-Request-Id"),
			saga.OrderCreatedPayload{
				OrderID:    o.ID,
				CustomerID: o.CustomerID,
				Items:      evItems,
				TotalCents: o.TotalCents,
				Currency:   o.Currency,
			})
	}

	writeJSON(w, http.StatusAccepted, CreateOrderResp{
		OrderID:    o.ID,
		SagaID:     o.SagaID,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		Status:     string(o.Status),
		Idempotent: existed,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// status cache first
	if cached, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Result(); err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"order_id": id, "status": cached})
		return
	}

	o, err := h.Store.FindByID(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id), string(o.Status), redisx.TTLStatusCache).Err()
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":    o.ID,
		"status":      string(o.Status),
		"total_cents": o.TotalCents,
		"currency":    o.Currency,
	})
}
