package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"gorm.io/gorm"
)

// GormStore persists accounts and messages through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened and migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateUser(ctx context.Context, user users.User) error {
	err := s.db.WithContext(ctx).Create(&user).Error
	if isUniqueViolation(err) {
		return users.ErrEmailTaken
	}
	return err
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (users.User, error) {
	var user users.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, users.ErrUserNotFound
	}
	return user, err
}

func (s *GormStore) FindUserByID(ctx context.Context, userID string) (users.User, error) {
	var user users.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, users.ErrUserNotFound
	}
	return user, err
}

func (s *GormStore) ListUsersExcept(ctx context.Context, userID string) ([]users.User, error) {
	var peers []users.User
	err := s.db.WithContext(ctx).
		Where("id <> ?", userID).
		Order("full_name ASC").
		Find(&peers).Error
	return peers, err
}

func (s *GormStore) UpdateProfilePic(ctx context.Context, userID, url string, updatedAt time.Time) (users.User, error) {
	result := s.db.WithContext(ctx).
		Model(&users.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"profile_pic": url, "updated_at": updatedAt})
	if result.Error != nil {
		return users.User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return users.User{}, users.ErrUserNotFound
	}
	return s.FindUserByID(ctx, userID)
}

func (s *GormStore) CreateMessage(ctx context.Context, message messages.Message) error {
	return s.db.WithContext(ctx).Create(&message).Error
}

func (s *GormStore) ListConversation(ctx context.Context, userA, userB string) ([]messages.Message, error) {
	var conversation []messages.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("created_at ASC").
		Order("id ASC").
		Find(&conversation).Error
	return conversation, err
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
