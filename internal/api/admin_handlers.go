package api

import (
	"net/http"

	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/domain/user"
)

const maxProductImages = 5

var (
	productForm = formSchema{
		arrays: []string{"categories", "sizes", "colors", "tags", "images"},
		bools:  []string{"isFeatured", "isActive"},
		ints:   []string{"stock"},
	}
	categoryForm = formSchema{}
)

// Products

func (h *Handlers) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Products.AdminList(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "All products fetched", h.present.products(products))
}

func (h *Handlers) AdminGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Products.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Product fetched", h.present.product(p))
}

// AdminCreateProduct accepts JSON or multipart with up to five "images".
func (h *Handlers) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.Input
	files, err := decodeBody(w, r, &req, productForm, "images", maxProductImages, h.maxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := h.svc.Products.Create(r.Context(), req, files)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Product created successfully", h.present.product(p))
}

func (h *Handlers) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.Patch
	files, err := decodeBody(w, r, &req, productForm, "images", maxProductImages, h.maxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := h.svc.Products.Update(r.Context(), r.PathValue("id"), req, files)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Product updated successfully", h.present.product(p))
}

func (h *Handlers) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Products.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Product deleted successfully", nil)
}

// Categories

func (h *Handlers) AdminGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Categories.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Category fetched", h.present.category(c))
}

// AdminCreateCategory accepts JSON or multipart with one "image".
func (h *Handlers) AdminCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req category.Input
	files, err := decodeBody(w, r, &req, categoryForm, "image", 1, h.maxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.svc.Categories.Create(r.Context(), req, firstFile(files))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Category created", h.present.category(c))
}

func (h *Handlers) AdminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req category.Patch
	files, err := decodeBody(w, r, &req, categoryForm, "image", 1, h.maxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.svc.Categories.Update(r.Context(), r.PathValue("id"), req, firstFile(files))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Category updated", h.present.category(c))
}

func (h *Handlers) AdminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Categories.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Category deleted", nil)
}

// Orders

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.AdminList(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Orders fetched", h.present.orders(orders))
}

func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.AdminGet(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order fetched", h.present.order(o))
}

func (h *Handlers) AdminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.AdminPatch
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.svc.Orders.AdminUpdate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order updated", h.present.order(o))
}

func (h *Handlers) AdminSetOrderPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsPaid bool `json:"isPaid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.svc.Orders.SetPaid(r.Context(), r.PathValue("id"), req.IsPaid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Payment status updated", h.present.order(o))
}

func (h *Handlers) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.AdminCancel(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order cancelled", h.present.order(o))
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Orders.AdminDelete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Order deleted", nil)
}

// Coupons

func (h *Handlers) AdminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.svc.Coupons.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Coupons fetched", coupons)
}

func (h *Handlers) AdminGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Coupons.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Coupon fetched", c)
}

func (h *Handlers) AdminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.Input
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.svc.Coupons.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Coupon created", c)
}

func (h *Handlers) AdminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.Patch
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.svc.Coupons.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Coupon updated", c)
}

func (h *Handlers) AdminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Coupons.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Coupon deleted", nil)
}

// Tickets

func (h *Handlers) AdminListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.Tickets.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Tickets fetched", h.present.tickets(tickets))
}

func (h *Handlers) AdminSetTicketStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status ticket.Status `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.svc.Tickets.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Ticket status updated", h.present.ticket(t))
}

func (h *Handlers) AdminDeleteTicketMessage(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "messageIndex")
	if err != nil {
		respondError(w, r, ticket.ErrInvalidMessageIndex)
		return
	}
	t, err := h.svc.Tickets.DeleteMessage(r.Context(), r.PathValue("id"), index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Message deleted", h.present.ticket(t))
}

// Users

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Users fetched", users)
}

func (h *Handlers) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "User fetched", u)
}

func (h *Handlers) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req user.AdminInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := h.svc.Users.AdminCreate(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "User created", u)
}

func (h *Handlers) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req user.AdminPatch
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	u, err := h.svc.Users.AdminUpdate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "User updated", u)
}

func (h *Handlers) AdminToggleBan(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.ToggleBan(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := "User unbanned"
	if u.Banned {
		message = "User banned"
	}
	respondJSON(w, http.StatusOK, message, u)
}

func (h *Handlers) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Users.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "User deleted", nil)
}

// Reviews

func (h *Handlers) AdminListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.svc.Reviews.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Reviews fetched", reviews)
}

func (h *Handlers) AdminSetReviewHidden(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rv, err := h.svc.Reviews.SetHidden(r.Context(), r.PathValue("id"), req.Hidden)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Review updated", rv)
}

func (h *Handlers) AdminDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reviews.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Review deleted", nil)
}

// Newsletter

func (h *Handlers) AdminListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.Newsletter.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Subscribers fetched", subs)
}
