package ticket

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/upload"
)

// Files stores attachments. Every file is sniffed before any is written.
type Files interface {
	SaveAll(area string, files []upload.File, allowed ...upload.Kind) ([]upload.Saved, error)
	Delete(path string) error
}

type Service struct {
	repo      Repository
	files     Files
	publisher events.Publisher
	now       func() time.Time
}

func NewService(repo Repository, files Files, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{repo: repo, files: files, publisher: publisher, now: time.Now}
}

// Actor is the caller acting on a ticket.
type Actor struct {
	UserID  string
	IsAdmin bool
}

func (a Actor) sender() Sender {
	if a.IsAdmin {
		return SenderAdmin
	}
	return SenderUser
}

func (a Actor) maxFiles() int {
	if a.IsAdmin {
		return MaxAdminFiles
	}
	return MaxUserFiles
}

type Input struct {
	Subject  string `json:"subject"`
	OrderRef string `json:"orderRef"`
	Message  string `json:"message"`
}

func (s *Service) Create(ctx context.Context, userID string, in Input, files []upload.File) (*Ticket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if in.Subject == "" || in.Message == "" {
		return nil, ErrMissingField
	}
	saved, err := s.attach(files, MaxUserFiles)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &Ticket{
		ID:       uuid.NewString(),
		UserID:   userID,
		Subject:  in.Subject,
		OrderRef: strings.TrimSpace(in.OrderRef),
		Status:   StatusOpen,
		Messages: []Message{{
			Sender:      SenderUser,
			Text:        in.Message,
			Attachments: saved,
			Date:        now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		s.drop(ctx, saved)
		return nil, err
	}
	return t, nil
}

// Reply appends a message. Customers may only reply to their own tickets;
// an admin reply marks the ticket replied and notifies the owner.
func (s *Service) Reply(ctx context.Context, actor Actor, id, text string, files []upload.File) (*Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	// Fail fast before touching disk.
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && current.UserID != actor.UserID {
		return nil, ErrForbiddenReply
	}
	saved, err := s.attach(files, actor.maxFiles())
	if err != nil {
		return nil, err
	}
	t, err := s.repo.Update(ctx, id, func(t *Ticket) error {
		now := s.now().UTC()
		t.Messages = append(t.Messages, Message{
			Sender:      actor.sender(),
			Text:        text,
			Attachments: saved,
			Date:        now,
		})
		if actor.IsAdmin {
			t.Status = StatusReplied
		}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.drop(ctx, saved)
		return nil, err
	}
	if actor.IsAdmin {
		s.publishReplied(ctx, t, text)
	}
	return t, nil
}

// Get returns a ticket to its owner or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Ticket, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && t.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return t, nil
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]Ticket, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context) ([]Ticket, error) {
	return s.repo.List(ctx)
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Ticket, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.Update(ctx, id, func(t *Ticket) error {
		t.Status = status
		t.UpdatedAt = s.now().UTC()
		return nil
	})
}

// DeleteMessage removes the message at index and its attachment files.
func (s *Service) DeleteMessage(ctx context.Context, id string, index int) (*Ticket, error) {
	var removed Message
	t, err := s.repo.Update(ctx, id, func(t *Ticket) error {
		if index < 0 || index >= len(t.Messages) {
			return ErrInvalidMessageIndex
		}
		removed = t.Messages[index]
		t.Messages = append(t.Messages[:index:index], t.Messages[index+1:]...)
		t.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.drop(ctx, removed.Attachments)
	return t, nil
}

func (s *Service) attach(files []upload.File, limit int) ([]upload.Saved, error) {
	if len(files) > limit {
		return nil, ErrTooManyFiles.Withf("Too many files (max %d)", limit)
	}
	if len(files) == 0 {
		return []upload.Saved{}, nil
	}
	return s.files.SaveAll(upload.AreaTickets, files)
}

func (s *Service) drop(ctx context.Context, saved []upload.Saved) {
	for _, f := range saved {
		if err := s.files.Delete(f.Path); err != nil {
			zctx.From(ctx).Warn("Delete ticket attachment",
				zap.String("path", f.Path),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) publishReplied(ctx context.Context, t *Ticket, text string) {
	e, err := events.New(events.TicketReplied, t.ID, Replied{
		TicketID: t.ID,
		UserID:   t.UserID,
		Subject:  t.Subject,
		Message:  text,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		zctx.From(ctx).Warn("Publish ticket event",
			zap.String("ticket_id", t.ID),
			zap.Error(err),
		)
	}
}
