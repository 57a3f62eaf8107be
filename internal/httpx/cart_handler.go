package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/modakita/go-fashion-storefront/internal/cart"
	"github.com/modakita/go-fashion-storefront/internal/catalog"
)

type CartHandler struct {
	Cart    *cart.Store
	Catalog *catalog.Repo
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart/{customerID}", h.get)
	r.Post("/cart/{customerID}/items", h.addItem)
	r.Delete("/cart/{customerID}/items/{productID}", h.removeItem)
	r.Delete("/cart/{customerID}", h.clear)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Cart.Items(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.Qty == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// reject carts pointing at products that do not exist
	if _, err := h.Catalog.Get(ctx, req.ProductID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Cart.Add(ctx, chi.URLParam(r, "customerID"), req.ProductID, req.Qty); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Cart.Remove(ctx, chi.URLParam(r, "customerID"), chi.URLParam(r, "productID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Cart.Clear(ctx, chi.URLParam(r, "customerID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
