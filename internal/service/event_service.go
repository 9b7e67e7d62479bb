package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Page sizes for history listings
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// EventHistory is the read and cancel side of the event store
type EventHistory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Event, error)
	ListByElder(ctx context.Context, elderID uuid.UUID, before *time.Time, limit int) ([]model.Event, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// EventService serves event history to caregivers
type EventService struct {
	events     EventHistory
	caregivers CaregiverChecker
	live       LivePublisher
	logger     *zap.Logger
	now        func() time.Time
}

func NewEventService(events EventHistory, caregivers CaregiverChecker, live LivePublisher, logger *zap.Logger) *EventService {
	return &EventService{
		events:     events,
		caregivers: caregivers,
		live:       live,
		logger:     logger.Named("events"),
		now:        time.Now,
	}
}

func (s *EventService) authorize(ctx context.Context, elderID, userID uuid.UUID) error {
	ok, err := s.caregivers.IsCaregiver(ctx, elderID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// List returns an elder's newest events, before the cursor when one is given
func (s *EventService) List(ctx context.Context, userID, elderID uuid.UUID, before *time.Time, limit int) ([]model.Event, error) {
	if err := s.authorize(ctx, elderID, userID); err != nil {
		return nil, err
	}
	return s.events.ListByElder(ctx, elderID, before, clampLimit(limit))
}

// Cancel marks an event as a false alarm and tells the elder's live room.
// Cancelling twice is not an error and publishes nothing the second time.
func (s *EventService) Cancel(ctx context.Context, userID, eventID uuid.UUID) (*model.Event, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}
		return nil, err
	}
	if err := s.authorize(ctx, event.ElderID, userID); err != nil {
		return nil, err
	}
	if event.IsCancelled {
		return event, nil
	}

	if err := s.events.Cancel(ctx, event.ID); err != nil {
		return nil, err
	}
	event.IsCancelled = true

	msg := &model.WSEvent{
		Type: model.WSEventStatusChanged,
		Payload: model.EventStatusChangedEvent{
			ElderID:     event.ElderID,
			EventID:     event.ID,
			EventType:   event.Type,
			IsCancelled: true,
			Timestamp:   s.now().UTC(),
		},
	}
	if err := s.live.PublishToElder(ctx, event.ElderID, msg); err != nil {
		s.logger.Warn("Failed to publish cancellation", zap.String("event_id", event.ID.String()), zap.Error(err))
	}
	return event, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
