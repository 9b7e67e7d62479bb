package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is a per-recipient inbox row for one event
type Notification struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_notification_user_event"`
	EventID   uuid.UUID  `json:"event_id" gorm:"type:uuid;not null;uniqueIndex:idx_notification_user_event"`
	Type      EventType  `json:"type" gorm:"type:varchar(20);not null"`
	Title     string     `json:"title" gorm:"size:200"`
	Message   string     `json:"message" gorm:"type:text"`
	IsRead    bool       `json:"is_read" gorm:"default:false"`
	IsSent    bool       `json:"is_sent" gorm:"default:false"`
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
