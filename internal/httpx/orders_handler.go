package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/modakita/go-fashion-storefront/internal/orders"
	"github.com/modakita/go-fashion-storefront/internal/redisx"
)

type OrdersHandler struct {
	Checkout *orders.CheckoutService
	Repo     *orders.Repo
	Redis    *redis.Client
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.getStatus)

	r.Post("/admin/orders/{id}/status", h.updateStatus)
	r.Post("/admin/orders/{id}/cancel", h.cancel)
}

type checkoutReq struct {
	CustomerID string `json:"customer_id"`
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing customer_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ord, err := h.Checkout.PlaceOrder(ctx, req.CustomerID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, ord.ID, ord.Status)
	writeJSON(w, http.StatusCreated, ord)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ord, err := h.Repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, DB as the source of truth
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	status, err := h.Repo.GetStatus(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, status)
	writeJSON(w, http.StatusOK, map[string]orders.Status{"status": status})
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if !req.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ord, err := h.Checkout.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, ord.ID, ord.Status)
	writeJSON(w, http.StatusOK, ord)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ord, err := h.Checkout.CancelOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, ord.ID, ord.Status)
	writeJSON(w, http.StatusOK, ord)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, status orders.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]orders.Status{"status": status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
