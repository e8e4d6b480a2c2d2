package store

import (
	"context"

	"github.com/example/ec-storefront/internal/domain/newsletter"
)

type MemoryNewsletterRepository struct {
	t *table[newsletter.Subscriber]
}

func NewMemoryNewsletterRepository() *MemoryNewsletterRepository {
	return &MemoryNewsletterRepository{t: newTable[newsletter.Subscriber](nil)}
}

func (r *MemoryNewsletterRepository) Create(_ context.Context, s *newsletter.Subscriber) error {
	return r.t.insert(s.ID, *s, func(existing newsletter.Subscriber) error {
		if existing.Email == s.Email {
			return newsletter.ErrAlreadySubscribed
		}
		return nil
	})
}

func (r *MemoryNewsletterRepository) List(context.Context) ([]newsletter.Subscriber, error) {
	subs := r.t.find(nil)
	sortByCreated(subs, func(s newsletter.Subscriber) int64 { return s.CreatedAt.UnixNano() })
	return subs, nil
}
