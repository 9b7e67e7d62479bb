package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ElderRepository reads elders and their caregiver associations
type ElderRepository struct {
	db *gorm.DB
}

func NewElderRepository(db *gorm.DB) *ElderRepository {
	return &ElderRepository{db: db}
}

// Create inserts an elder together with its caregiver associations
func (r *ElderRepository) Create(ctx context.Context, elder *model.Elder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(elder).Error; err != nil {
			return err
		}
		for i := range elder.Caregivers {
			elder.Caregivers[i].ElderID = elder.ID
			if err := tx.Omit(clause.Associations).Create(&elder.Caregivers[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindWithCaregivers loads an elder with its ordered caregivers and their push tokens
func (r *ElderRepository) FindWithCaregivers(ctx context.Context, id uuid.UUID) (*model.Elder, error) {
	var elder model.Elder
	err := r.db.WithContext(ctx).
		Preload("Caregivers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		}).
		Preload("Caregivers.User").
		Preload("Caregivers.User.PushTokens").
		Where("id = ?", id).
		First(&elder).Error
	if err != nil {
		return nil, err
	}
	return &elder, nil
}

// IsCaregiver checks whether a user is associated with an elder
func (r *ElderRepository) IsCaregiver(ctx context.Context, elderID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ElderCaregiver{}).
		Where("elder_id = ? AND user_id = ?", elderID, userID).
		Count(&count).Error
	return count > 0, err
}
