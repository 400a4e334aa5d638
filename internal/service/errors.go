package service

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyPassword        = errors.New("password must not be empty")
	ErrUnsupportedImage     = errors.New("image must be a jpeg or png of at most 1MB")
	ErrConflict             = errors.New("email or phone number is already taken")
	ErrEmailAlreadyVerified = errors.New("email already verified")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrForbidden            = errors.New("not authorized for this account")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCode          = errors.New("reset code is invalid")
	ErrCodeExpired          = errors.New("reset code has expired")
	ErrInvalidToken         = errors.New("invalid token")
	ErrUpstream             = errors.New("upstream service failure")
	ErrStorageDisabled      = errors.New("object storage is not configured")
)
