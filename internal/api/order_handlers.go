package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/domain/order"
)

// customID accepts an order number sent either as a JSON number or string.
type customID int

func (c *customID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return order.ErrInvalidCustomID
	}
	*c = customID(n)
	return nil
}

// PlaceOrder is checkout for signed-in users and guests alike.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.svc.Orders.Place(r.Context(), userID(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Order placed successfully", h.present.order(o))
}

func (h *Handlers) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListMine(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Orders fetched", h.present.orders(orders))
}

// GetOrder returns an order by id; orders placed by a user are only visible
// to that user.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Get(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order fetched", h.present.order(o))
}

func (h *Handlers) GetOrderByCustomID(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "customId")
	if err != nil {
		respondError(w, r, order.ErrInvalidCustomID)
		return
	}
	o, err := h.svc.Orders.GetByCustomID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order fetched", h.present.order(o))
}

func (h *Handlers) GetOrdersByEmail(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Orders fetched", h.present.orders(orders))
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "customOrderId")
	if err != nil {
		respondError(w, r, order.ErrInvalidCustomID)
		return
	}
	o, err := h.svc.Orders.Cancel(r.Context(), userID(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order cancelled", h.present.order(o))
}

func (h *Handlers) CancelOrderAsGuest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomOrderID customID `json:"customOrderId"`
		Email         string   `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.svc.Orders.CancelAsGuest(r.Context(), int(req.CustomOrderID), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order cancelled", h.present.order(o))
}

// EditOrder changes the shipping address. Guests must send the order's
// contact email.
func (h *Handlers) EditOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "customId")
	if err != nil {
		respondError(w, r, order.ErrInvalidCustomID)
		return
	}
	var req struct {
		Address order.Address `json:"address"`
		Email   string        `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.svc.Orders.Edit(r.Context(), userID(r), id, req.Email, req.Address)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order updated", h.present.order(o))
}

// ApplyCoupon quotes a discount for a cart subtotal without redeeming.
func (h *Handlers) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string          `json:"code"`
		Subtotal decimal.Decimal `json:"subtotal"`
		Email    string          `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok && req.Email == "" {
		req.Email = claims.Email
	}
	q, err := h.svc.Coupons.Quote(r.Context(), req.Code, req.Subtotal, userID(r), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Coupon applied!", q)
}
