package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository handles database operations for Event
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateIfAbsent inserts the event unless one with the same occurrence key exists.
// It reports whether a new row was written.
func (r *EventRepository) CreateIfAbsent(ctx context.Context, event *model.Event) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "occurrence_key"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID finds an event by UUID
func (r *EventRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByElder returns the newest events of an elder, optionally before a cursor
func (r *EventRepository) ListByElder(ctx context.Context, elderID uuid.UUID, before *time.Time, limit int) ([]model.Event, error) {
	var events []model.Event
	query := r.db.WithContext(ctx).Where("elder_id = ?", elderID)
	if before != nil {
		query = query.Where("timestamp < ?", *before)
	}
	err := query.Order("timestamp DESC").Limit(limit).Find(&events).Error
	return events, err
}

// Cancel flips the is_cancelled flag
func (r *EventRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", id).
		Update("is_cancelled", true).Error
}
