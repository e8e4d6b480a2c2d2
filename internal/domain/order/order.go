// Package order places orders and drives their lifecycle: cancellation and
// address edits by the customer while the order is still modifiable, and
// unrestricted updates by an admin.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/domain/coupon"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

var (
	ErrNotFound          = apperror.NotFound("Order not found")
	ErrNoOrdersForEmail  = apperror.NotFound("No orders found for this email")
	ErrNoItems           = apperror.BadRequest("No items to order")
	ErrInvalidItem       = apperror.BadRequest("Each item needs a product, a quantity of at least 1 and a non-negative price")
	ErrUnknownProduct    = apperror.BadRequest("Product not found")
	ErrNotCancellable    = apperror.BadRequest("Order can no longer be cancelled")
	ErrNotModifiable     = apperror.BadRequest("Order can no longer be modified")
	ErrGuestCancelFields = apperror.BadRequest("Order ID and email are required")
	ErrEmailRequired     = apperror.BadRequest("Email is required")
	ErrInvalidStatus     = apperror.BadRequest("Invalid status")
	ErrInvalidCustomID   = apperror.BadRequest("Invalid order ID")
	ErrForbiddenView     = apperror.Forbidden("Not authorized to view this order")
	ErrForbiddenCancel   = apperror.Forbidden("Not authorized to cancel this order")
	ErrForbiddenEdit     = apperror.Forbidden("Not authorized to edit this order")
	ErrEmailMismatch     = apperror.Forbidden("Email does not match order record")
	ErrEmailVerification = apperror.Forbidden("Email verification failed")
	ErrCustomIDTaken     = apperror.Conflict("Order ID already exists")
	ErrIDSpaceExhausted  = apperror.New(apperror.KindInternal, "Could not allocate an order ID")
)

// Address is the shipping and contact block stored on the order. Email is
// what guests prove ownership with.
type Address struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Merge overwrites the fields that are non-empty in p.
func (a *Address) Merge(p Address) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&a.FullName, p.FullName)
	set(&a.Email, p.Email)
	set(&a.Phone, p.Phone)
	set(&a.Street, p.Street)
	set(&a.City, p.City)
	set(&a.PostalCode, p.PostalCode)
	set(&a.Country, p.Country)
}

// Item is a line snapshot taken when the order was placed.
type Item struct {
	ProductID string          `json:"product"`
	Title     string          `json:"title"`
	Image     string          `json:"image,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID            string          `json:"id"`
	CustomOrderID int             `json:"customOrderId"`
	UserID        string          `json:"user,omitempty"`
	Items         []Item          `json:"items"`
	Address       Address         `json:"address"`
	PaymentMethod string          `json:"paymentMethod"`
	IsPaid        bool            `json:"isPaid"`
	PaidAt        *time.Time      `json:"paidAt"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	// Coupon is frozen at checkout; later coupon edits never touch it.
	Coupon      *coupon.Quote `json:"coupon"`
	Status      Status        `json:"status"`
	CanModify   bool          `json:"canModify"`
	CancelledAt *time.Time    `json:"cancelledAt"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Modifiable is the gate for customer cancellation and edits.
func (o *Order) Modifiable() bool {
	return o.CanModify && o.Status != StatusShipped
}

// OwnedBy reports whether userID may act on o as its owner. Guest orders
// and anonymous callers are not checked here.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == "" || userID == "" || o.UserID == userID
}

// EmailMatches is the guest proof of ownership: email must equal the
// contact email exactly, surrounding spaces aside.
func (o *Order) EmailMatches(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && email == strings.TrimSpace(o.Address.Email)
}

// ContactedAt reports whether email is the contact email, ignoring case.
// It backs the guest order lookup only.
func (o *Order) ContactedAt(email string) bool {
	email = normalizeEmail(email)
	return email != "" && email == normalizeEmail(o.Address.Email)
}

func (o *Order) cancel(now time.Time) {
	o.Status = StatusCancelled
	o.CanModify = false
	o.CancelledAt = &now
}

func (o *Order) setPaid(paid bool, now time.Time) {
	o.IsPaid = paid
	if paid {
		o.PaidAt = &now
	} else {
		o.PaidAt = nil
	}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Repository persists orders.
//
// Create reports ErrCustomIDTaken when the customOrderId is in use. Update
// applies fn to the stored order atomically and persists the result unless
// fn fails. Lists are newest first. FindPurchase returns the id of a
// non-cancelled order by userID containing productID, or ErrNotFound.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, id string, fn func(*Order) error) (*Order, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByCustomID(ctx context.Context, customID int) (*Order, error)
	CustomIDExists(ctx context.Context, customID int) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListByEmail(ctx context.Context, email string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	FindPurchase(ctx context.Context, userID, productID string) (string, error)
}
