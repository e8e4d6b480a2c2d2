package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/upload"
)

// The contract suites below run against every repository implementation:
// memory in unit tests, Postgres behind the integration build tag.

func newCoupon(code string, limit int) *coupon.Coupon {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &coupon.Coupon{
		ID:          uuid.NewString(),
		Code:        code,
		Type:        coupon.TypePercentage,
		Value:       decimal.NewFromInt(10),
		MinSubtotal: decimal.Zero,
		UsageLimit:  limit,
		StartDate:   now.Add(-time.Hour),
		ExpiryDate:  now.Add(time.Hour),
		UsersUsed:   []string{},
		EmailsUsed:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func redemption(code, userID, email string) coupon.Redemption {
	return coupon.Redemption{
		OrderID:    uuid.NewString(),
		Code:       code,
		UserID:     userID,
		Email:      email,
		RedeemedAt: time.Now().UTC(),
	}
}

func testCouponRepository(t *testing.T, newRepo func(t *testing.T) coupon.Repository) {
	ctx := context.Background()

	t.Run("CreateAndLookup", func(t *testing.T) {
		repo := newRepo(t)
		c := newCoupon("SAVE10", 5)
		require.NoError(t, repo.Create(ctx, c))
		require.ErrorIs(t, repo.Create(ctx, newCoupon("SAVE10", 1)), coupon.ErrCodeTaken)

		got, err := repo.GetByCode(ctx, "SAVE10")
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.True(t, c.Value.Equal(got.Value))
		assert.Zero(t, got.UsedCount)

		_, err = repo.Get(ctx, uuid.NewString())
		require.ErrorIs(t, err, coupon.ErrNotFound)
	})

	t.Run("RedeemIsIdempotentPerOrder", func(t *testing.T) {
		repo := newRepo(t)
		c := newCoupon("ONCE", 3)
		require.NoError(t, repo.Create(ctx, c))

		r := redemption("ONCE", "user-1", "a@shop.test")
		require.NoError(t, repo.Redeem(ctx, r))
		require.NoError(t, repo.Redeem(ctx, r))

		got, err := repo.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.UsedCount)
		assert.Equal(t, []string{"user-1"}, got.UsersUsed)
		assert.Equal(t, []string{"a@shop.test"}, got.EmailsUsed)
	})

	t.Run("RedeemRejectsReuse", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newCoupon("REUSE", 10)))

		require.NoError(t, repo.Redeem(ctx, redemption("REUSE", "user-1", "a@shop.test")))
		require.ErrorIs(t, repo.Redeem(ctx, redemption("REUSE", "user-1", "")), coupon.ErrAlreadyUsed)
		require.ErrorIs(t, repo.Redeem(ctx, redemption("REUSE", "", "a@shop.test")), coupon.ErrAlreadyUsed)
		require.NoError(t, repo.Redeem(ctx, redemption("REUSE", "user-2", "b@shop.test")))
	})

	t.Run("RedeemHonoursLimit", func(t *testing.T) {
		repo := newRepo(t)
		c := newCoupon("LIMIT", 1)
		require.NoError(t, repo.Create(ctx, c))

		first := redemption("LIMIT", "user-1", "")
		require.NoError(t, repo.Redeem(ctx, first))
		require.ErrorIs(t, repo.Redeem(ctx, redemption("LIMIT", "user-2", "")), coupon.ErrExhausted)

		require.NoError(t, repo.Release(ctx, first.OrderID))
		require.NoError(t, repo.Redeem(ctx, redemption("LIMIT", "user-2", "")))
	})

	t.Run("RedeemUnknownCode", func(t *testing.T) {
		repo := newRepo(t)
		require.ErrorIs(t, repo.Redeem(ctx, redemption("NOPE", "user-1", "")), coupon.ErrInvalidCode)
	})

	t.Run("ReleaseUnknownOrder", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Release(ctx, uuid.NewString()))
	})

	t.Run("ConcurrentRedeem", func(t *testing.T) {
		repo := newRepo(t)
		c := newCoupon("RUSH", 3)
		require.NoError(t, repo.Create(ctx, c))

		const attempts = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Redeem(ctx, redemption("RUSH", fmt.Sprintf("user-%d", i), ""))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, coupon.ErrExhausted)
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, succeeded)
		got, err := repo.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.UsedCount)
	})
}

func newOrder(customID int, userID, email string, productIDs ...string) *order.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	items := make([]order.Item, 0, len(productIDs))
	for _, id := range productIDs {
		items = append(items, order.Item{ProductID: id, Title: "Item " + id, Price: decimal.NewFromInt(10), Quantity: 1})
	}
	return &order.Order{
		ID:            uuid.NewString(),
		CustomOrderID: customID,
		UserID:        userID,
		Items:         items,
		Address:       order.Address{FullName: "Test", Email: email, Street: "1 Main St", City: "Town", Country: "NL"},
		PaymentMethod: "cod",
		Subtotal:      decimal.NewFromInt(int64(10 * len(items))),
		TotalAmount:   decimal.NewFromInt(int64(10 * len(items))),
		Status:        order.StatusPending,
		CanModify:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testOrderRepository(t *testing.T, newRepo func(t *testing.T) order.Repository) {
	ctx := context.Background()

	t.Run("CustomIDIsUnique", func(t *testing.T) {
		repo := newRepo(t)
		o := newOrder(123456, "", "guest@shop.test", "p1")
		require.NoError(t, repo.Create(ctx, o))
		require.ErrorIs(t, repo.Create(ctx, newOrder(123456, "", "other@shop.test", "p1")), order.ErrCustomIDTaken)

		exists, err := repo.CustomIDExists(ctx, 123456)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repo.CustomIDExists(ctx, 654321)
		require.NoError(t, err)
		assert.False(t, exists)

		got, err := repo.GetByCustomID(ctx, 123456)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "p1", got.Items[0].ProductID)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		o := newOrder(200000, "user-1", "u@shop.test", "p1")
		require.NoError(t, repo.Create(ctx, o))

		updated, err := repo.Update(ctx, o.ID, func(o *order.Order) error {
			o.Status = order.StatusShipped
			o.CanModify = false
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, updated.Status)

		_, err = repo.Update(ctx, o.ID, func(*order.Order) error { return order.ErrNotModifiable })
		require.ErrorIs(t, err, order.ErrNotModifiable)

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, got.Status)
		assert.False(t, got.CanModify)

		_, err = repo.Update(ctx, uuid.NewString(), func(*order.Order) error { return nil })
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("Lists", func(t *testing.T) {
		repo := newRepo(t)
		first := newOrder(300001, "user-1", "Buyer@Shop.test", "p1")
		second := newOrder(300002, "user-1", "buyer@shop.test", "p2")
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		other := newOrder(300003, "user-2", "other@shop.test", "p1")
		for _, o := range []*order.Order{first, second, other} {
			require.NoError(t, repo.Create(ctx, o))
		}

		mine, err := repo.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, second.ID, mine[0].ID)

		byEmail, err := repo.ListByEmail(ctx, "buyer@shop.test")
		require.NoError(t, err)
		assert.Len(t, byEmail, 2)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("FindPurchase", func(t *testing.T) {
		repo := newRepo(t)
		o := newOrder(400001, "user-1", "u@shop.test", "p1", "p2")
		require.NoError(t, repo.Create(ctx, o))

		id, err := repo.FindPurchase(ctx, "user-1", "p2")
		require.NoError(t, err)
		assert.Equal(t, o.ID, id)

		_, err = repo.FindPurchase(ctx, "user-2", "p2")
		require.ErrorIs(t, err, order.ErrNotFound)

		_, err = repo.Update(ctx, o.ID, func(o *order.Order) error {
			o.Status = order.StatusCancelled
			return nil
		})
		require.NoError(t, err)
		_, err = repo.FindPurchase(ctx, "user-1", "p2")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		o := newOrder(500001, "", "g@shop.test", "p1")
		require.NoError(t, repo.Create(ctx, o))
		require.NoError(t, repo.Delete(ctx, o.ID))
		_, err := repo.Get(ctx, o.ID)
		require.ErrorIs(t, err, order.ErrNotFound)
		require.ErrorIs(t, repo.Delete(ctx, o.ID), order.ErrNotFound)
	})
}

// userStore is what the Postgres and memory user repositories both provide.
type userStore interface {
	user.Repository
	user.Sessions
}

func newUser(email string) *user.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &user.User{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		Role:         auth.RoleCustomer,
		Addresses:    []user.Address{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testUserRepository(t *testing.T, newRepo func(t *testing.T) userStore) {
	ctx := context.Background()

	t.Run("EmailIsUnique", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("a@shop.test")
		require.NoError(t, repo.Create(ctx, u))
		require.ErrorIs(t, repo.Create(ctx, newUser("a@shop.test")), user.ErrEmailTaken)

		got, err := repo.GetByEmail(ctx, "a@shop.test")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = repo.GetByEmail(ctx, "missing@shop.test")
		require.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		a := newUser("a@shop.test")
		b := newUser("b@shop.test")
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		got, err := repo.Update(ctx, a.ID, func(u *user.User) error {
			u.Banned = true
			u.Addresses = append(u.Addresses, user.Address{Street: "1 Main St", City: "Town"})
			return nil
		})
		require.NoError(t, err)
		assert.True(t, got.Banned)

		stored, err := repo.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, stored.Banned)
		require.Len(t, stored.Addresses, 1)
		assert.Equal(t, "Town", stored.Addresses[0].City)

		_, err = repo.Update(ctx, a.ID, func(u *user.User) error {
			u.Email = "b@shop.test"
			return nil
		})
		require.ErrorIs(t, err, user.ErrEmailTaken)
	})

	t.Run("Sessions", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("s@shop.test")
		require.NoError(t, repo.Create(ctx, u))

		now := time.Now().UTC().Truncate(time.Millisecond)
		for _, hash := range []string{"hash-1", "hash-2"} {
			require.NoError(t, repo.CreateSession(ctx, &user.Session{
				ID: uuid.NewString(), UserID: u.ID, TokenHash: hash,
				ExpiresAt: now.Add(time.Hour), CreatedAt: now,
			}))
		}

		s, err := repo.GetSession(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, u.ID, s.UserID)

		require.NoError(t, repo.DeleteSession(ctx, s.ID))
		_, err = repo.GetSession(ctx, "hash-1")
		require.ErrorIs(t, err, user.ErrInvalidSession)

		require.NoError(t, repo.DeleteUserSessions(ctx, u.ID))
		_, err = repo.GetSession(ctx, "hash-2")
		require.ErrorIs(t, err, user.ErrInvalidSession)
	})
}

func newTicket(userID, subject string, created time.Time) *ticket.Ticket {
	return &ticket.Ticket{
		ID:      uuid.NewString(),
		UserID:  userID,
		Subject: subject,
		Status:  ticket.StatusOpen,
		Messages: []ticket.Message{{
			Sender:      ticket.SenderUser,
			Text:        "Where is my parcel?",
			Attachments: []upload.Saved{{Path: "/uploads/tickets/a.png", Kind: upload.KindImage}},
			Date:        created,
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func testTicketRepository(t *testing.T, newRepo func(t *testing.T) ticket.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		tk := newTicket("user-1", "Late delivery", now)
		require.NoError(t, repo.Create(ctx, tk))

		got, err := repo.Get(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, "Late delivery", got.Subject)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, tk.Messages[0].Attachments, got.Messages[0].Attachments)
		assert.True(t, now.Equal(got.CreatedAt))

		_, err = repo.Get(ctx, uuid.NewString())
		require.ErrorIs(t, err, ticket.ErrNotFound)
	})

	t.Run("UpdateAppendsMessages", func(t *testing.T) {
		repo := newRepo(t)
		tk := newTicket("user-1", "Refund", now)
		require.NoError(t, repo.Create(ctx, tk))

		for i := range 3 {
			_, err := repo.Update(ctx, tk.ID, func(t *ticket.Ticket) error {
				t.Messages = append(t.Messages, ticket.Message{
					Sender: ticket.SenderAdmin,
					Text:   fmt.Sprintf("reply %d", i),
					Date:   now,
				})
				t.Status = ticket.StatusReplied
				return nil
			})
			require.NoError(t, err)
		}

		got, err := repo.Get(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, ticket.StatusReplied, got.Status)
		require.Len(t, got.Messages, 4)
		assert.Equal(t, "reply 2", got.Messages[3].Text)

		_, err = repo.Update(ctx, tk.ID, func(*ticket.Ticket) error { return ticket.ErrInvalidStatus })
		require.ErrorIs(t, err, ticket.ErrInvalidStatus)
		_, err = repo.Update(ctx, uuid.NewString(), func(*ticket.Ticket) error { return nil })
		require.ErrorIs(t, err, ticket.ErrNotFound)
	})

	t.Run("ListsNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		older := newTicket("user-1", "Older", now)
		newer := newTicket("user-1", "Newer", now.Add(time.Minute))
		other := newTicket("user-2", "Other", now)
		for _, tk := range []*ticket.Ticket{older, newer, other} {
			require.NoError(t, repo.Create(ctx, tk))
		}

		mine, err := repo.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, newer.ID, mine[0].ID)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
