package service

import (
	"accounts/internal/entity"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a self-scoped operation.
type Actor struct {
	UserID    uuid.UUID
	IPAddress *string
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	IPAddress *string
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress *string
}

type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}

type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// UpdateProfileInput carries the fields to merge; empty strings keep the stored value.
type UpdateProfileInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Image     *ImageUpload
}

type ImageUpload struct {
	Filename string
	Data     []byte
}

type AuthResult struct {
	Token     string
	ExpiresIn int64
	User      *entity.User
}

type AccountExport struct {
	Filename string
	User     *entity.User
	Events   []entity.SecurityLog
}
