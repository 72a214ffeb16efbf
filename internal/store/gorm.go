package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/session_gate/internal/models"
)

type GormStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, Now: time.Now}
}

func (r *GormStore) Migrate(ctx context.Context) error {
	if err := r.DB.WithContext(ctx).AutoMigrate(&models.User{}, &models.RefreshToken{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *GormStore) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// CreateUser inserts u unless the username is taken.
func (r *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	var existing models.User
	tx := r.DB.WithContext(ctx).Where("username = ?", u.Username).Limit(1).Find(&existing)
	if tx.Error != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, tx.Error)
	}
	if tx.RowsAffected > 0 {
		return ErrUserAlreadyExists
	}
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, "username = ?", username)
}

func (r *GormStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *GormStore) findUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &user, nil
}

// RegisterRefreshToken upserts on the token hash so re-registering a token
// cannot resurrect a different binding.
func (r *GormStore) RegisterRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	row := models.RefreshToken{
		TokenHash: HashToken(token),
		UserID:    userID,
		ExpiresAt: expiresAt.Unix(),
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_hash"}},
		DoUpdates: clause.Assignments(map[string]any{"user_id": userID, "expires_at": row.ExpiresAt, "revoked": false}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *GormStore) IsRefreshTokenValid(ctx context.Context, token, userID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND user_id = ? AND revoked = ? AND expires_at > ?",
			HashToken(token), userID, false, r.now().Unix()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count > 0, nil
}

func (r *GormStore) RevokeRefreshToken(ctx context.Context, token string) error {
	err := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", HashToken(token)).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes revoked and expired rows.
func (r *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	tx := r.DB.WithContext(ctx).
		Where("revoked = ? OR expires_at <= ?", true, r.now().Unix()).
		Delete(&models.RefreshToken{})
	if tx.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, tx.Error)
	}
	return tx.RowsAffected, nil
}
