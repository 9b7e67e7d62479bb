package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"gorm.io/gorm"
)

// Inbox is the caregiver-facing side of the notification store
type Inbox interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}

// PushTokenRegistry stores push bindings
type PushTokenRegistry interface {
	AddPushToken(ctx context.Context, userID uuid.UUID, token string, platform string) error
}

// NotificationService serves a caregiver's inbox and push registrations
type NotificationService struct {
	inbox  Inbox
	tokens PushTokenRegistry
}

func NewNotificationService(inbox Inbox, tokens PushTokenRegistry) *NotificationService {
	return &NotificationService{inbox: inbox, tokens: tokens}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	return s.inbox.ListByUser(ctx, userID, clampLimit(limit))
}

// MarkRead only touches rows owned by the user
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	err := s.inbox.MarkRead(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *NotificationService) RegisterPushToken(ctx context.Context, userID uuid.UUID, req model.RegisterPushTokenRequest) error {
	return s.tokens.AddPushToken(ctx, userID, req.Token, req.Platform)
}
