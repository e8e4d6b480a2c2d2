// Package notification turns storefront events into customer e-mail.
package notification

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/events"
)

// Mailer sends the rendered notifications.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, o email.Order) error
	SendOrderCancelled(ctx context.Context, to string, o email.Order) error
	SendTicketReply(ctx context.Context, to string, r email.TicketReply) error
}

// Users resolves the address of a ticket owner.
type Users interface {
	Email(ctx context.Context, id string) (string, error)
}

// Handler processes events for sending notifications
type Handler struct {
	mailer Mailer
	users  Users
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, users Users) *Handler {
	return &Handler{mailer: mailer, users: users}
}

// Handle is an events.Handler. Unknown event types are ignored.
func (h *Handler) Handle(ctx context.Context, e events.Envelope) error {
	switch e.Type {
	case events.OrderPlaced, events.OrderCancelled:
		var o order.Order
		if err := e.Decode(&o); err != nil {
			return err
		}
		return h.handleOrder(ctx, e.Type, &o)
	case events.TicketReplied:
		var r ticket.Replied
		if err := e.Decode(&r); err != nil {
			return err
		}
		return h.handleTicketReplied(ctx, &r)
	}
	return nil
}

func (h *Handler) handleOrder(ctx context.Context, typ string, o *order.Order) error {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.Int("custom_order_id", o.CustomOrderID))
	to := o.Address.Email
	if to == "" {
		lg.Info("Order has no contact email, skipping notification")
		return nil
	}

	msg := toEmailOrder(o)
	var err error
	if typ == events.OrderPlaced {
		err = h.mailer.SendOrderConfirmation(ctx, to, msg)
	} else {
		err = h.mailer.SendOrderCancelled(ctx, to, msg)
	}
	if err != nil {
		return errors.Wrapf(err, "notify %s", typ)
	}
	lg.Info("Order email sent", zap.String("type", typ))
	return nil
}

func (h *Handler) handleTicketReplied(ctx context.Context, r *ticket.Replied) error {
	to, err := h.users.Email(ctx, r.UserID)
	if err != nil {
		return errors.Wrapf(err, "resolve owner of ticket %s", r.TicketID)
	}
	if err := h.mailer.SendTicketReply(ctx, to, email.TicketReply{
		TicketID: r.TicketID,
		Subject:  r.Subject,
		Message:  r.Message,
	}); err != nil {
		return errors.Wrap(err, "notify ticket reply")
	}
	zctx.From(ctx).Info("Ticket reply email sent", zap.String("ticket_id", r.TicketID))
	return nil
}

func toEmailOrder(o *order.Order) email.Order {
	items := make([]email.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, email.OrderItem{
			Name:     it.Title,
			Quantity: it.Quantity,
			Price:    it.Price,
			Size:     it.Size,
			Color:    it.Color,
		})
	}
	msg := email.Order{
		CustomOrderID: o.CustomOrderID,
		Name:          o.Address.FullName,
		Items:         items,
		Subtotal:      o.Subtotal,
		Total:         o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
	}
	if o.Coupon != nil {
		msg.CouponCode = o.Coupon.Code
		msg.Discount = o.Coupon.Discount
	}
	return msg
}
