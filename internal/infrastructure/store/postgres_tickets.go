package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/domain/ticket"
)

// PostgresTicketRepository implements ticket.Repository with the message
// thread in a JSONB column.
type PostgresTicketRepository struct {
	db *sql.DB
}

func NewPostgresTicketRepository(db *sql.DB) *PostgresTicketRepository {
	return &PostgresTicketRepository{db: db}
}

const ticketSelect = `SELECT id, user_id, subject, order_ref, status, messages, created_at, updated_at FROM tickets `

func scanTicket(row rowScanner) (*ticket.Ticket, error) {
	var t ticket.Ticket
	if err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.OrderRef, &t.Status, asJSON(&t.Messages),
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if t.Messages == nil {
		t.Messages = []ticket.Message{}
	}
	return &t, nil
}

func (r *PostgresTicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, user_id, subject, order_ref, status, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.Subject, t.OrderRef, t.Status, asJSON(&t.Messages), t.CreatedAt, t.UpdatedAt); err != nil {
		return errors.Wrap(err, "insert ticket")
	}
	return nil
}

func (r *PostgresTicketRepository) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, ticketSelect+`WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get ticket")
	}
	return t, nil
}

func (r *PostgresTicketRepository) Update(ctx context.Context, id string, fn func(*ticket.Ticket) error) (*ticket.Ticket, error) {
	var out *ticket.Ticket
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		t, err := scanTicket(tx.QueryRowContext(ctx, ticketSelect+`WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ticket.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock ticket")
		}
		if err := fn(t); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tickets SET subject = $2, order_ref = $3, status = $4, messages = $5, updated_at = $6
			WHERE id = $1
		`, t.ID, t.Subject, t.OrderRef, t.Status, asJSON(&t.Messages), t.UpdatedAt); err != nil {
			return errors.Wrap(err, "write ticket")
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresTicketRepository) list(ctx context.Context, where string, args ...any) ([]ticket.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, ticketSelect+where+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query tickets")
	}
	return scanAll(rows, scanTicket)
}

func (r *PostgresTicketRepository) ListByUser(ctx context.Context, userID string) ([]ticket.Ticket, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *PostgresTicketRepository) List(ctx context.Context) ([]ticket.Ticket, error) {
	return r.list(ctx, "")
}
