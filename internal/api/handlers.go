// Package api is the HTTP surface of the storefront.
package api

import (
	"net/http"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/newsletter"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/review"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/domain/wishlist"
	"github.com/example/ec-storefront/internal/upload"
)

// defaultMaxFileSize applies when uploads are configured without a limit.
const defaultMaxFileSize = 20 << 20

// Services are the domain services behind the handlers.
type Services struct {
	Categories *category.Service
	Products   *product.Service
	Carts      *cart.Service
	Wishlists  *wishlist.Service
	Coupons    *coupon.Service
	Orders     *order.Service
	Reviews    *review.Service
	Tickets    *ticket.Service
	Users      *user.Service
	Newsletter *newsletter.Service
}

// Handlers implements every storefront endpoint.
type Handlers struct {
	svc          Services
	files        *upload.Storage
	present      presenter
	cookieSecure bool
	maxFileSize  int64
	accessTTL    int
	refreshTTL   int
}

// NewHandlers wires svc. files builds the public URLs of stored paths and
// jwt only supplies cookie lifetimes.
func NewHandlers(svc Services, files *upload.Storage, jwt *auth.JWTService, cookieSecure bool) *Handlers {
	maxSize := files.MaxSize()
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}
	return &Handlers{
		svc:          svc,
		files:        files,
		present:      presenter{files: files},
		cookieSecure: cookieSecure,
		maxFileSize:  maxSize,
		accessTTL:    int(jwt.AccessTTL().Seconds()),
		refreshTTL:   int(jwt.RefreshTTL().Seconds()),
	}
}

func userID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

func isAdmin(r *http.Request) bool {
	claims, ok := middleware.GetUserFromContext(r.Context())
	return ok && claims.IsAdmin()
}
