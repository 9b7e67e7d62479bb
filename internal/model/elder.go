package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessLevel defines what a caregiver may do for an elder
type AccessLevel string

const (
	AccessLevelOwner  AccessLevel = "OWNER"
	AccessLevelEditor AccessLevel = "EDITOR"
	AccessLevelViewer AccessLevel = "VIEWER"
)

// Elder is the monitored person
type Elder struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Caregivers []ElderCaregiver `json:"caregivers,omitempty" gorm:"foreignKey:ElderID"`
}

func (e *Elder) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ElderCaregiver associates a caregiver user with an elder.
// Position keeps the association ordered.
type ElderCaregiver struct {
	ElderID     uuid.UUID   `json:"elder_id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID   `json:"user_id" gorm:"type:uuid;primaryKey"`
	AccessLevel AccessLevel `json:"access_level" gorm:"type:varchar(10);default:'VIEWER'"`
	Position    int         `json:"position" gorm:"default:0"`
	CreatedAt   time.Time   `json:"created_at"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}

// CaregiverIDs returns the caregiver user IDs in association order
func (e *Elder) CaregiverIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Caregivers))
	for _, c := range e.Caregivers {
		ids = append(ids, c.UserID)
	}
	return ids
}
