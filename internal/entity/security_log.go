package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SecurityAction string

const (
	Registered                 SecurityAction = "register"
	LoginSuccess               SecurityAction = "login_success"
	LoginFailed                SecurityAction = "login_failed"
	Logout                     SecurityAction = "logout"
	PasswordResetRequested     SecurityAction = "password_reset_requested"
	PasswordReset              SecurityAction = "password_reset"
	PasswordChanged            SecurityAction = "password_changed"
	EmailVerificationRequested SecurityAction = "email_verification_requested"
	EmailVerified              SecurityAction = "email_verified"
	ProfileUpdated             SecurityAction = "profile_updated"
	AvatarUpdated              SecurityAction = "avatar_updated"
	AccountDeleted             SecurityAction = "account_deleted"
	AccountExported            SecurityAction = "account_exported"
)

type SecurityLog struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`

	UserID *uuid.UUID `gorm:"type:uuid;index"`
	User   *User      `gorm:"constraint:OnDelete:SET NULL"`

	IPAddress *string        `gorm:"type:varchar(45)"`
	Action    SecurityAction `gorm:"type:varchar(64);not null;index"`

	Metadata datatypes.JSON

	CreatedAt time.Time
}
