package users

import (
	"strings"
	"time"
)

// User is the persisted account record. PasswordHash never leaves the server.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64;not null" bson:"_id" json:"id"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex" bson:"email" json:"email"`
	FullName     string    `gorm:"column:full_name;size:320;not null" bson:"full_name" json:"fullName"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null" bson:"password_hash" json:"-"`
	ProfilePic   string    `gorm:"column:profile_pic;size:1024;not null;default:''" bson:"profile_pic" json:"profilePic"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null" bson:"updated_at" json:"updatedAt"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
