package entity

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100);not null" json:"last_name"`
	FullName  string    `gorm:"type:varchar(201);not null" json:"full_name"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone     *string   `gorm:"type:varchar(32);uniqueIndex" json:"phone,omitempty"`

	PasswordHash string `gorm:"type:text;not null" json:"-"`

	AvatarURL      *string `gorm:"type:text" json:"avatar_url,omitempty"`
	AvatarObjectID *string `gorm:"type:text" json:"-"`

	EmailVerified bool `gorm:"default:false;not null" json:"email_verified"`
	PhoneVerified bool `gorm:"default:false;not null" json:"phone_verified"`

	// Hash of the secret embedded in the outstanding email verification token.
	PendingVerificationToken *string `gorm:"type:text;index" json:"-"`

	ResetCodeHash      *string    `gorm:"type:text" json:"-"`
	ResetCodeExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) HasAvatarObject() bool {
	return u.AvatarObjectID != nil && *u.AvatarObjectID != ""
}

func BuildFullName(firstName, lastName string) string {
	if lastName == "" {
		return firstName
	}
	return firstName + " " + lastName
}
