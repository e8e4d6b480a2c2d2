// Package ticket implements support tickets: a conversation between a
// customer and the shop's admins, with sniffed file attachments.
package ticket

import (
	"context"
	"time"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/upload"
)

type Status string

const (
	StatusOpen    Status = "open"
	StatusReplied Status = "replied"
	StatusClosed  Status = "closed"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusReplied || s == StatusClosed
}

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

// Attachment limits per message.
const (
	MaxUserFiles  = 3
	MaxAdminFiles = 5
)

var (
	ErrNotFound            = apperror.NotFound("Ticket not found")
	ErrMissingField        = apperror.BadRequest("Subject and message are required")
	ErrEmptyMessage        = apperror.BadRequest("Message cannot be empty")
	ErrInvalidStatus       = apperror.BadRequest("Invalid status")
	ErrInvalidMessageIndex = apperror.BadRequest("Invalid message index")
	ErrTooManyFiles        = apperror.BadRequest("Too many files")
	ErrForbidden           = apperror.Forbidden("Not authorized to view this ticket")
	ErrForbiddenReply      = apperror.Forbidden("Not authorized to reply to this ticket")
)

type Message struct {
	Sender      Sender         `json:"sender" bson:"sender"`
	Text        string         `json:"text" bson:"text"`
	Attachments []upload.Saved `json:"attachments" bson:"attachments"`
	Date        time.Time      `json:"date" bson:"date"`
}

type Ticket struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user" bson:"user_id"`
	Subject   string    `json:"subject" bson:"subject"`
	OrderRef  string    `json:"orderRef,omitempty" bson:"order_ref,omitempty"`
	Status    Status    `json:"status" bson:"status"`
	Messages  []Message `json:"messages" bson:"messages"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Replied is the payload of the ticket.replied event.
type Replied struct {
	TicketID string `json:"ticketId"`
	UserID   string `json:"userId"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// Repository persists tickets with their message thread. Update applies fn
// to the stored ticket atomically. Lists are newest first.
type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	Update(ctx context.Context, id string, fn func(*Ticket) error) (*Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]Ticket, error)
	List(ctx context.Context) ([]Ticket, error)
}
