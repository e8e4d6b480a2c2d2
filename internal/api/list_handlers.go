package api

import (
	"net/http"

	"github.com/example/ec-storefront/internal/domain/cart"
)

// Cart

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Carts.Get(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Cart fetched", h.present.cart(v))
}

// AddToCart merges the quantity into the matching line.
func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cart.AddInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	v, err := h.svc.Carts.Add(r.Context(), userID(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Cart updated", h.present.cart(v))
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cart.ItemPatch
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	v, err := h.svc.Carts.UpdateItem(r.Context(), userID(r), r.PathValue("itemId"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Cart item updated", h.present.cart(v))
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Carts.RemoveItem(r.Context(), userID(r), r.PathValue("itemId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Item removed from cart", h.present.cart(v))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Carts.Clear(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Cart cleared", h.present.cart(v))
}

// Wishlist

func (h *Handlers) GetWishlist(w http.ResponseWriter, r *http.Request) {
	lines, err := h.svc.Wishlists.Get(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Wishlist fetched", h.present.wishlist(lines))
}

func (h *Handlers) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	lines, err := h.svc.Wishlists.Add(r.Context(), userID(r), req.ProductID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Added to wishlist", h.present.wishlist(lines))
}

func (h *Handlers) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	lines, err := h.svc.Wishlists.Remove(r.Context(), userID(r), r.PathValue("itemId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Removed from wishlist", h.present.wishlist(lines))
}

func (h *Handlers) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	lines, err := h.svc.Wishlists.Clear(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Wishlist cleared", h.present.wishlist(lines))
}
