package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/upload"
)

const testSecret = "test-secret-key-with-enough-entropy!"

type testServer struct {
	handler  http.Handler
	products *store.MemoryProductRepository
	svc      Services
	events   *events.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	jwtSvc := auth.NewJWTService(testSecret, 15*time.Minute, 24*time.Hour)
	files := upload.New(t.TempDir(), "http://shop.test", 1<<20)
	rec := &events.Recorder{}

	products := store.NewMemoryProductRepository()
	users := store.NewMemoryUserRepository()

	categories := category.NewService(store.NewMemoryCategoryRepository(), files)
	productSvc := product.NewService(products, categories, files)
	coupons := coupon.NewService(store.NewMemoryCouponRepository())
	orders := order.NewService(store.NewMemoryOrderRepository(), productSvc, coupons, rec)
	userSvc := user.NewService(users, users, jwtSvc)
	svc := Services{
		Categories: categories,
		Products:   productSvc,
		Carts:      cart.NewService(store.NewMemoryCartRepository(), productSvc),
		Wishlists:  wishlist.NewService(store.NewMemoryWishlistRepository(), productSvc),
		Coupons:    coupons,
		Orders:     orders,
		Reviews:    review.NewService(store.NewMemoryReviewRepository(), orders, productSvc),
		Tickets:    ticket.NewService(store.NewMemoryTicketRepository(), files, rec),
		Users:      userSvc,
		Newsletter: newsletter.NewService(store.NewMemoryNewsletterRepository()),
	}

	mux := http.NewServeMux()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	Register(ctx, mux, NewHandlers(svc, files, jwtSvc, false), middleware.NewAuthenticator(jwtSvc, userSvc), DefaultLimits())
	return &testServer{handler: mux, products: products, svc: svc, events: rec}
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

// login signs in through the service and returns the access cookie.
func (s *testServer) login(t *testing.T, email string, admin bool) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	if admin {
		_, err := s.svc.Users.EnsureAdmin(ctx, "Admin", email, "password123")
		require.NoError(t, err)
	} else {
		_, err := s.svc.Users.Register(ctx, user.RegisterInput{
			Name: "Ada", Email: email, Password: "password123", RepeatPassword: "password123",
		})
		require.NoError(t, err)
	}
	l, err := s.svc.Users.Login(ctx, email, "password123")
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.AccessCookie, Value: l.Tokens.Access}
}

func (s *testServer) addProduct(t *testing.T, id, slug string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.products.Create(context.Background(), &product.Product{
		ID:         id,
		Title:      "Product " + id,
		Slug:       slug,
		Price:      decimal.NewFromInt(25),
		Categories: []string{"cat-1"},
		Images:     []string{"/uploads/product-images/" + id + ".jpg"},
		Stock:      10,
		IsActive:   active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/auth/register", user.RegisterInput{
		Name: "Ada", Email: "ada@example.com", Password: "password123", RepeatPassword: "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)
	assert.True(t, resp.Success)

	access := cookieByName(rec, middleware.AccessCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	refresh := cookieByName(rec, refreshCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, refreshPath, refresh.Path)

	rec, resp = s.do(t, http.MethodGet, "/api/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.Profile
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, "ada@example.com", me.Email)
	assert.Equal(t, auth.RoleCustomer, me.Role)

	rec, resp = s.do(t, http.MethodPost, "/api/auth/register", user.RegisterInput{
		Name: "Ada", Email: "ADA@example.com", Password: "password123", RepeatPassword: "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := cookieByName(rec, refreshCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	// The consumed refresh token cannot be replayed.
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/logout", nil, access, rotated)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieByName(rec, middleware.AccessCookie)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, rotated)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_BadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "ada@example.com", false)

	rec, resp := s.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid email or password", resp.Message)
}

func TestProducts_PublicCatalog(t *testing.T) {
	s := newTestServer(t)
	s.addProduct(t, "p1", "visible", true)
	s.addProduct(t, "p2", "hidden", false)

	rec, resp := s.do(t, http.MethodGet, "/api/products?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page product.Page
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Products, 1)
	assert.Equal(t, "p1", page.Products[0].ID)
	assert.Equal(t, []string{"http://shop.test/uploads/product-images/p1.jpg"}, page.Products[0].Images)
	assert.Equal(t, 1, page.Meta.Total)

	rec, _ = s.do(t, http.MethodGet, "/api/products/hidden", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/products/visible", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/products?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/products/by-ids", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/products/by-ids", map[string]any{"ids": []string{"p1", "p2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var byIDs []product.Product
	require.NoError(t, json.Unmarshal(resp.Data, &byIDs))
	require.Len(t, byIDs, 1)
}

func TestCart(t *testing.T) {
	s := newTestServer(t)
	s.addProduct(t, "p1", "tee", true)

	rec, resp := s.do(t, http.MethodGet, "/api/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	c := s.login(t, "ada@example.com", false)
	two := 2
	for range 2 {
		rec, _ = s.do(t, http.MethodPost, "/api/cart", cart.AddInput{ProductID: "p1", Quantity: &two, Size: "m"}, c)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, resp = s.do(t, http.MethodGet, "/api/cart", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	var v cart.View
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	require.Len(t, v.Items, 1)
	assert.Equal(t, 4, v.Items[0].Quantity)
	assert.Equal(t, []string{"http://shop.test/uploads/product-images/p1.jpg"}, v.Items[0].Product.Images)

	for range 2 {
		rec, resp = s.do(t, http.MethodDelete, "/api/cart/clear", nil, c)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(resp.Data, &v))
		assert.Empty(t, v.Items)
	}
}

func TestOrders_GuestCheckout(t *testing.T) {
	s := newTestServer(t)
	s.addProduct(t, "p1", "tee", true)
	s.addProduct(t, "p2", "mug", true)

	rec, resp := s.do(t, http.MethodPost, "/api/orders", order.PlaceInput{
		Items: []order.ItemInput{
			{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(25)},
			{ProductID: "p2", Quantity: 1, Price: decimal.NewFromInt(50)},
		},
		Address:       order.Address{FullName: "Guest", Email: "Guest@Example.com"},
		PaymentMethod: "cod",
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)
	var placed order.Order
	require.NoError(t, json.Unmarshal(resp.Data, &placed))
	assert.GreaterOrEqual(t, placed.CustomOrderID, 100000)
	assert.Less(t, placed.CustomOrderID, 1000000)
	assert.Len(t, placed.Items, 2)
	assert.True(t, placed.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{events.OrderPlaced}, s.events.Types())

	id := placed.CustomOrderID
	rec, _ = s.do(t, http.MethodPatch, "/api/orders/edit/"+itoa(id), map[string]any{
		"email":   "Guest@Example.com",
		"address": order.Address{City: "Lisbon"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = s.do(t, http.MethodPatch, "/api/orders/cancel-guest", map[string]any{
		"customOrderId": id, "email": "someone@else.com",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = s.do(t, http.MethodPatch, "/api/orders/cancel-guest", map[string]any{
		"customOrderId": id, "email": "GUEST@example.com",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = s.do(t, http.MethodPatch, "/api/orders/cancel-guest", map[string]any{
		"customOrderId": itoa(id), "email": "Guest@Example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var cancelled order.Order
	require.NoError(t, json.Unmarshal(resp.Data, &cancelled))
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, "Lisbon", cancelled.Address.City)

	rec, _ = s.do(t, http.MethodGet, "/api/orders/by-custom/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/orders/email/guest@example.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrders_OwnerCancelRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	s.addProduct(t, "p1", "tee", true)
	c := s.login(t, "ada@example.com", false)

	rec, resp := s.do(t, http.MethodPost, "/api/orders", order.PlaceInput{
		Items:   []order.ItemInput{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(25)}},
		Address: order.Address{Email: "ada@example.com"},
	}, c)
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed order.Order
	require.NoError(t, json.Unmarshal(resp.Data, &placed))

	path := "/api/orders/" + itoa(placed.CustomOrderID) + "/cancel"
	rec, _ = s.do(t, http.MethodPatch, path, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := s.login(t, "bob@example.com", false)
	rec, _ = s.do(t, http.MethodPatch, path, nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, path, nil, c)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/orders/"+itoa(placed.CustomOrderID)+"/refund", nil, c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/api/orders/my-orders", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []order.Order
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	assert.Len(t, mine, 1)
}

func TestCoupons_ApplyAndAdmin(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@example.com", true)
	customer := s.login(t, "ada@example.com", false)

	in := coupon.Input{
		Code:        "save20",
		Type:        coupon.TypePercentage,
		Value:       decimal.NewFromInt(20),
		MinSubtotal: ptr(decimal.NewFromInt(100)),
		StartDate:   time.Now().Add(-time.Hour),
		ExpiryDate:  time.Now().Add(time.Hour),
	}
	rec, _ := s.do(t, http.MethodPost, "/api/admin/coupons", in, customer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp := s.do(t, http.MethodPost, "/api/admin/coupons", in, admin)
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)

	rec, resp = s.do(t, http.MethodPost, "/api/coupons/apply", map[string]any{"code": "SAVE20", "subtotal": 150})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var q coupon.Quote
	require.NoError(t, json.Unmarshal(resp.Data, &q))
	assert.True(t, q.Discount.Equal(decimal.NewFromInt(30)), q.Discount.String())

	rec, resp = s.do(t, http.MethodPost, "/api/coupons/apply", map[string]any{"code": "SAVE20", "subtotal": 80})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestTickets(t *testing.T) {
	s := newTestServer(t)
	owner := s.login(t, "ada@example.com", false)
	other := s.login(t, "bob@example.com", false)
	admin := s.login(t, "admin@example.com", true)

	rec, resp := s.do(t, http.MethodPost, "/api/tickets", ticket.Input{Subject: "Late", Message: "Where is it?"}, owner)
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)
	var tk ticket.Ticket
	require.NoError(t, json.Unmarshal(resp.Data, &tk))

	rec, _ = s.do(t, http.MethodGet, "/api/tickets/"+tk.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/tickets/"+tk.ID+"/reply", map[string]string{"message": "hi"}, other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/api/admin/tickets/"+tk.ID+"/reply", map[string]string{"message": "Shipped"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &tk))
	assert.Equal(t, ticket.StatusReplied, tk.Status)
	assert.Contains(t, s.events.Types(), events.TicketReplied)

	rec, _ = s.do(t, http.MethodPatch, "/api/admin/tickets/"+tk.ID+"/status", map[string]string{"status": "archived"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodDelete, "/api/admin/tickets/"+tk.ID+"/message/0", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &tk))
	assert.Len(t, tk.Messages, 1)
}

func TestAddressesAndNewsletter(t *testing.T) {
	s := newTestServer(t)
	c := s.login(t, "ada@example.com", false)

	rec, _ := s.do(t, http.MethodPost, "/api/user/addresses", map[string]any{"fullName": "Ada", "city": "Paris"}, c)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := s.do(t, http.MethodPut, "/api/user/addresses/0", map[string]any{"address": map[string]string{"city": "Lyon"}}, c)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var addrs []user.Address
	require.NoError(t, json.Unmarshal(resp.Data, &addrs))
	require.Len(t, addrs, 1)
	assert.Equal(t, "Lyon", addrs[0].City)

	rec, _ = s.do(t, http.MethodDelete, "/api/user/addresses/5", nil, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/newsletter", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/newsletter", map[string]string{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/newsletter", nil, c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec, resp := s.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestRespondError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	respondError(rec, req, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func ptr[T any](v T) *T { return &v }

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
