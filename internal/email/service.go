// Package email sends customer notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/go-faster/errors"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(ctx context.Context, to string, o Order) error {
	body, err := BuildOrderConfirmationBody(o)
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "Order confirmation #"+strconv.Itoa(o.CustomOrderID), body)
}

// SendOrderCancelled tells the customer their order was cancelled.
func (s *Service) SendOrderCancelled(ctx context.Context, to string, o Order) error {
	body, err := BuildOrderCancelledBody(o)
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "Order #"+strconv.Itoa(o.CustomOrderID)+" cancelled", body)
}

// SendTicketReply tells the ticket owner an admin replied.
func (s *Service) SendTicketReply(ctx context.Context, to string, r TicketReply) error {
	body, err := BuildTicketReplyBody(r)
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "Re: "+r.Subject, body)
}

func (s *Service) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := s.host + ":" + s.port
	if err := s.send(addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return errors.Wrapf(err, "send mail to %s", to)
	}
	return nil
}
