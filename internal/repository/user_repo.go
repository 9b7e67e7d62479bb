package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/guardian/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository handles database operations for User
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID finds a user by UUID
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddPushToken adds or refreshes a push token
func (r *UserRepository) AddPushToken(ctx context.Context, userID uuid.UUID, token string, platform string) error {
	pushToken := model.PushToken{
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		LastActiveAt: time.Now(),
	}
	// Upsert: on conflict do update
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_active_at": time.Now(),
			"platform":       platform,
		}),
	}).Create(&pushToken).Error
}

// RemovePushToken deletes a token the push provider reported as unregistered
func (r *UserRepository) RemovePushToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&model.PushToken{}).Error
}
