// Package newsletter records newsletter sign-ups.
package newsletter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/validate"
)

var (
	ErrEmailRequired     = apperror.BadRequest("Email is required.")
	ErrInvalidEmail      = apperror.BadRequest("Please provide a valid email address.")
	ErrAlreadySubscribed = apperror.BadRequest("This email is already subscribed.")
)

type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository persists subscribers. Create reports ErrAlreadySubscribed for a
// known email; List is newest first.
type Repository interface {
	Create(ctx context.Context, s *Subscriber) error
	List(ctx context.Context) ([]Subscriber, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Subscribe(ctx context.Context, email string) (*Subscriber, error) {
	email = validate.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !validate.Email(email) {
		return nil, ErrInvalidEmail
	}
	sub := &Subscriber{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context) ([]Subscriber, error) {
	return s.repo.List(ctx)
}
