package api

import (
	"context"
	"net/http"
	"time"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/pkg/httpmiddleware"
)

var errRouteNotFound = apperror.NotFound("Route not found")

// Limits are the per-group request ceilings layered under the global one.
type Limits struct {
	Auth    httpmiddleware.RateLimitConfig
	Orders  httpmiddleware.RateLimitConfig
	Reviews httpmiddleware.RateLimitConfig
	Tickets httpmiddleware.RateLimitConfig
}

func DefaultLimits() Limits {
	return Limits{
		Auth: httpmiddleware.RateLimitConfig{
			Max: 10, Window: 15 * time.Minute,
			Message: "Too many login attempts, please try again later.",
		},
		Orders: httpmiddleware.RateLimitConfig{
			Max: 10, Window: time.Minute,
			Message: "Too many order requests, please slow down.",
		},
		Reviews: httpmiddleware.RateLimitConfig{
			Max: 5, Window: time.Minute,
			Message: "Too many reviews submitted, please wait a minute.",
		},
		Tickets: httpmiddleware.RateLimitConfig{
			Max: 5, Window: time.Minute,
			Message: "Too many ticket requests, please wait a minute.",
		},
	}
}

// Register mounts every storefront route on mux. ctx bounds the limiter
// clean-up goroutines.
func Register(ctx context.Context, mux *http.ServeMux, h *Handlers, authn *middleware.Authenticator, limits Limits) {
	var (
		authLimit   = httpmiddleware.RateLimitWithCleanup(ctx, limits.Auth)
		orderLimit  = httpmiddleware.RateLimitWithCleanup(ctx, limits.Orders)
		reviewLimit = httpmiddleware.RateLimitWithCleanup(ctx, limits.Reviews)
		ticketLimit = httpmiddleware.RateLimitWithCleanup(ctx, limits.Tickets)
	)
	public := func(f http.HandlerFunc) http.Handler { return f }
	optional := func(f http.HandlerFunc) http.Handler { return authn.Optional(f) }
	required := func(f http.HandlerFunc) http.Handler { return authn.Require(f) }
	admin := func(f http.HandlerFunc) http.Handler { return authn.Admin(f) }

	// Auth
	mux.Handle("POST /api/auth/register", authLimit(public(h.Register)))
	mux.Handle("POST /api/auth/login", authLimit(public(h.Login)))
	mux.Handle("POST /api/auth/logout", authLimit(optional(h.Logout)))
	mux.Handle("POST /api/auth/refresh", authLimit(public(h.Refresh)))
	mux.Handle("GET /api/auth/me", authLimit(required(h.Me)))

	// Catalog
	mux.Handle("GET /api/categories", public(h.GetCategories))
	mux.Handle("GET /api/products", public(h.GetProducts))
	mux.Handle("GET /api/products/search", public(h.SearchProducts))
	mux.Handle("GET /api/products/{slug}", public(h.GetProductBySlug))
	mux.Handle("POST /api/products/by-ids", public(h.GetProductsByIDs))

	// Cart and wishlist
	mux.Handle("GET /api/cart", required(h.GetCart))
	mux.Handle("POST /api/cart", required(h.AddToCart))
	mux.Handle("DELETE /api/cart/clear", required(h.ClearCart))
	mux.Handle("PUT /api/cart/{itemId}", required(h.UpdateCartItem))
	mux.Handle("DELETE /api/cart/{itemId}", required(h.RemoveCartItem))
	mux.Handle("GET /api/wishlist", required(h.GetWishlist))
	mux.Handle("POST /api/wishlist", required(h.AddToWishlist))
	mux.Handle("POST /api/wishlist/clear", required(h.ClearWishlist))
	mux.Handle("DELETE /api/wishlist/{itemId}", required(h.RemoveFromWishlist))

	// Orders
	mux.Handle("POST /api/orders", orderLimit(optional(h.PlaceOrder)))
	mux.Handle("GET /api/orders/my-orders", orderLimit(required(h.GetMyOrders)))
	mux.Handle("GET /api/orders/{id}", orderLimit(optional(h.GetOrder)))
	mux.Handle("GET /api/orders/by-custom/{customId}", orderLimit(public(h.GetOrderByCustomID)))
	mux.Handle("GET /api/orders/email/{email}", orderLimit(public(h.GetOrdersByEmail)))
	mux.Handle("PATCH /api/orders/cancel-guest", orderLimit(public(h.CancelOrderAsGuest)))
	// "/{customOrderId}/cancel" and "/edit/{customId}" overlap as mux
	// patterns, so one route dispatches both.
	mux.Handle("PATCH /api/orders/{first}/{second}", orderLimit(orderAction(
		required(h.CancelOrder),
		optional(h.EditOrder),
	)))

	// Coupons
	mux.Handle("POST /api/coupons/apply", optional(h.ApplyCoupon))

	// Reviews
	mux.Handle("POST /api/reviews", reviewLimit(required(h.CreateReview)))
	mux.Handle("GET /api/reviews/{productId}", reviewLimit(public(h.GetProductReviews)))

	// Tickets
	mux.Handle("POST /api/tickets", ticketLimit(required(h.CreateTicket)))
	mux.Handle("GET /api/tickets/my-tickets", ticketLimit(required(h.GetMyTickets)))
	mux.Handle("GET /api/tickets/{id}", ticketLimit(required(h.GetTicket)))
	mux.Handle("PATCH /api/tickets/{id}/reply", ticketLimit(required(h.ReplyToTicket)))

	// Account
	mux.Handle("GET /api/user/addresses", required(h.GetAddresses))
	mux.Handle("POST /api/user/addresses", required(h.AddAddress))
	mux.Handle("PUT /api/user/addresses/{index}", required(h.UpdateAddress))
	mux.Handle("DELETE /api/user/addresses/{index}", required(h.DeleteAddress))

	// Newsletter
	mux.Handle("POST /api/newsletter", public(h.Subscribe))
	mux.Handle("GET /api/newsletter", admin(h.AdminListSubscribers))

	// Admin
	mux.Handle("GET /api/admin/products", admin(h.AdminListProducts))
	mux.Handle("POST /api/admin/products", admin(h.AdminCreateProduct))
	mux.Handle("GET /api/admin/products/{id}", admin(h.AdminGetProduct))
	mux.Handle("PUT /api/admin/products/{id}", admin(h.AdminUpdateProduct))
	mux.Handle("DELETE /api/admin/products/{id}", admin(h.AdminDeleteProduct))

	mux.Handle("GET /api/admin/categories", admin(h.GetCategories))
	mux.Handle("POST /api/admin/categories", admin(h.AdminCreateCategory))
	mux.Handle("GET /api/admin/categories/{id}", admin(h.AdminGetCategory))
	mux.Handle("PUT /api/admin/categories/{id}", admin(h.AdminUpdateCategory))
	mux.Handle("DELETE /api/admin/categories/{id}", admin(h.AdminDeleteCategory))

	mux.Handle("GET /api/admin/orders", admin(h.AdminListOrders))
	mux.Handle("GET /api/admin/orders/{id}", admin(h.AdminGetOrder))
	mux.Handle("PATCH /api/admin/orders/{id}", admin(h.AdminUpdateOrder))
	mux.Handle("PATCH /api/admin/orders/{id}/payment", admin(h.AdminSetOrderPayment))
	mux.Handle("PATCH /api/admin/orders/{id}/cancel", admin(h.AdminCancelOrder))
	mux.Handle("DELETE /api/admin/orders/{id}", admin(h.AdminDeleteOrder))

	mux.Handle("GET /api/admin/coupons", admin(h.AdminListCoupons))
	mux.Handle("POST /api/admin/coupons", admin(h.AdminCreateCoupon))
	mux.Handle("GET /api/admin/coupons/{id}", admin(h.AdminGetCoupon))
	mux.Handle("PUT /api/admin/coupons/{id}", admin(h.AdminUpdateCoupon))
	mux.Handle("DELETE /api/admin/coupons/{id}", admin(h.AdminDeleteCoupon))

	mux.Handle("GET /api/admin/tickets", admin(h.AdminListTickets))
	mux.Handle("GET /api/admin/tickets/{id}", admin(h.GetTicket))
	mux.Handle("POST /api/admin/tickets/{id}/reply", admin(h.ReplyToTicket))
	mux.Handle("PATCH /api/admin/tickets/{id}/status", admin(h.AdminSetTicketStatus))
	mux.Handle("DELETE /api/admin/tickets/{id}/message/{messageIndex}", admin(h.AdminDeleteTicketMessage))

	mux.Handle("GET /api/admin/users", admin(h.AdminListUsers))
	mux.Handle("POST /api/admin/users", admin(h.AdminCreateUser))
	mux.Handle("GET /api/admin/users/{id}", admin(h.AdminGetUser))
	mux.Handle("PUT /api/admin/users/{id}", admin(h.AdminUpdateUser))
	mux.Handle("PATCH /api/admin/users/{id}/ban", admin(h.AdminToggleBan))
	mux.Handle("DELETE /api/admin/users/{id}", admin(h.AdminDeleteUser))

	mux.Handle("GET /api/admin/reviews", admin(h.AdminListReviews))
	mux.Handle("PATCH /api/admin/reviews/{id}", admin(h.AdminSetReviewHidden))
	mux.Handle("DELETE /api/admin/reviews/{id}", admin(h.AdminDeleteReview))

	mux.Handle("/api/", public(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, errRouteNotFound)
	}))
}

// orderAction routes PATCH /api/orders/{first}/{second} to the owner
// cancellation or to the address edit.
func orderAction(cancel, edit http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first, second := r.PathValue("first"), r.PathValue("second")
		switch {
		case first == "edit":
			r.SetPathValue("customId", second)
			edit.ServeHTTP(w, r)
		case second == "cancel":
			r.SetPathValue("customOrderId", first)
			cancel.ServeHTTP(w, r)
		default:
			respondError(w, r, errRouteNotFound)
		}
	})
}
