package store

import (
	"context"
	"slices"

	"github.com/example/ec-storefront/internal/domain/ticket"
)

type MemoryTicketRepository struct {
	t *table[ticket.Ticket]
}

func cloneTicket(t ticket.Ticket) ticket.Ticket {
	t.Messages = slices.Clone(t.Messages)
	for i := range t.Messages {
		t.Messages[i].Attachments = slices.Clone(t.Messages[i].Attachments)
	}
	return t
}

func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{t: newTable(cloneTicket)}
}

func newestTickets(ts []ticket.Ticket) []ticket.Ticket {
	sortByCreated(ts, func(t ticket.Ticket) int64 { return t.CreatedAt.UnixNano() })
	return ts
}

func (r *MemoryTicketRepository) Create(_ context.Context, t *ticket.Ticket) error {
	return r.t.insert(t.ID, *t, nil)
}

func (r *MemoryTicketRepository) Get(_ context.Context, id string) (*ticket.Ticket, error) {
	t, ok := r.t.get(id)
	if !ok {
		return nil, ticket.ErrNotFound
	}
	return &t, nil
}

func (r *MemoryTicketRepository) Update(_ context.Context, id string, fn func(*ticket.Ticket) error) (*ticket.Ticket, error) {
	var out ticket.Ticket
	ok, err := r.t.mutate(id, func(t *ticket.Ticket) error {
		if err := fn(t); err != nil {
			return err
		}
		out = cloneTicket(*t)
		return nil
	})
	if !ok {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MemoryTicketRepository) ListByUser(_ context.Context, userID string) ([]ticket.Ticket, error) {
	return newestTickets(r.t.find(func(t ticket.Ticket) bool { return t.UserID == userID })), nil
}

func (r *MemoryTicketRepository) List(context.Context) ([]ticket.Ticket, error) {
	return newestTickets(r.t.find(nil)), nil
}
