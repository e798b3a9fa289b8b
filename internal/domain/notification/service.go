package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo      Repository
	templates *TemplateEngine
	logger    zerolog.Logger
}

func NewService(repo Repository, templates *TemplateEngine, logger zerolog.Logger) *Service {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Service{repo: repo, templates: templates, logger: logger}
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, title, message string) (*Notification, error) {
	n := &Notification{UserID: userID, Title: title, Message: message}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// Notify renders the event template and stores the result for userID.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]string) error {
	title, message, err := s.templates.Render(event, data)
	if err != nil {
		return err
	}
	n, err := s.Create(ctx, userID, title, message)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("notification_id", n.ID.String()).Str("user_id", userID.String()).Str("event", event).Msg("notification stored")
	return nil
}

func (s *Service) FindByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*Notification, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly)
}

func (s *Service) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
