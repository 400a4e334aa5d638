package repository

import (
	"errors"
	"time"

	"accounts/internal/entity"
)

var ErrDuplicate = errors.New("duplicate user email or phone")

// UserUpdate is a partial set of user columns. Nil fields are left untouched.
type UserUpdate struct {
	FirstName                *string
	LastName                 *string
	FullName                 *string
	Email                    *string
	Phone                    *string
	PasswordHash             *string
	AvatarURL                *string
	AvatarObjectID           *string
	EmailVerified            *bool
	PendingVerificationToken *string
	ResetCodeHash            *string
	ResetCodeExpiresAt       *time.Time
}

func (u UserUpdate) IsEmpty() bool {
	return len(u.columns()) == 0
}

func (u UserUpdate) columns() map[string]any {
	columns := map[string]any{}
	if u.FirstName != nil {
		columns["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		columns["last_name"] = *u.LastName
	}
	if u.FullName != nil {
		columns["full_name"] = *u.FullName
	}
	if u.Email != nil {
		columns["email"] = *u.Email
	}
	if u.Phone != nil {
		columns["phone"] = *u.Phone
	}
	if u.PasswordHash != nil {
		columns["password_hash"] = *u.PasswordHash
	}
	if u.AvatarURL != nil {
		columns["avatar_url"] = *u.AvatarURL
	}
	if u.AvatarObjectID != nil {
		columns["avatar_object_id"] = *u.AvatarObjectID
	}
	if u.EmailVerified != nil {
		columns["email_verified"] = *u.EmailVerified
	}
	if u.PendingVerificationToken != nil {
		columns["pending_verification_token"] = *u.PendingVerificationToken
	}
	if u.ResetCodeHash != nil {
		columns["reset_code_hash"] = *u.ResetCodeHash
	}
	if u.ResetCodeExpiresAt != nil {
		columns["reset_code_expires_at"] = *u.ResetCodeExpiresAt
	}
	return columns
}

func (u UserUpdate) apply(user *entity.User) {
	if u.FirstName != nil {
		user.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
	}
	if u.FullName != nil {
		user.FullName = *u.FullName
	}
	if u.Email != nil {
		user.Email = *u.Email
	}
	if u.Phone != nil {
		user.Phone = copyString(u.Phone)
	}
	if u.PasswordHash != nil {
		user.PasswordHash = *u.PasswordHash
	}
	if u.AvatarURL != nil {
		user.AvatarURL = copyString(u.AvatarURL)
	}
	if u.AvatarObjectID != nil {
		user.AvatarObjectID = copyString(u.AvatarObjectID)
	}
	if u.EmailVerified != nil {
		user.EmailVerified = *u.EmailVerified
	}
	if u.PendingVerificationToken != nil {
		user.PendingVerificationToken = copyString(u.PendingVerificationToken)
	}
	if u.ResetCodeHash != nil {
		user.ResetCodeHash = copyString(u.ResetCodeHash)
	}
	if u.ResetCodeExpiresAt != nil {
		expiresAt := *u.ResetCodeExpiresAt
		user.ResetCodeExpiresAt = &expiresAt
	}
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
