package dto

import (
	"time"

	"accounts/internal/entity"
)

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UpdateProfileRequest binds from JSON or multipart form fields. Empty fields
// keep the stored value.
type UpdateProfileRequest struct {
	FirstName string `json:"first_name" form:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" form:"last_name" validate:"omitempty,max=100"`
	Email     string `json:"email" form:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" form:"phone" validate:"omitempty,max=32"`
}

// UserResponse is the only outbound shape of a user. Fields are copied one by
// one so that credential material never reaches a response.
type UserResponse struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Phone         *string   `json:"phone,omitempty"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func UserResponseFromEntity(user *entity.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}
	return UserResponse{
		ID:            user.ID.String(),
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		FullName:      user.FullName,
		Email:         user.Email,
		Phone:         user.Phone,
		AvatarURL:     user.AvatarURL,
		EmailVerified: user.EmailVerified,
		PhoneVerified: user.PhoneVerified,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

type SecurityEventResponse struct {
	Action    string    `json:"action"`
	IPAddress *string   `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountExportResponse struct {
	User   UserResponse            `json:"user"`
	Events []SecurityEventResponse `json:"security_events"`
}

func AccountExportFromEntities(user *entity.User, events []entity.SecurityLog) AccountExportResponse {
	response := AccountExportResponse{
		User:   UserResponseFromEntity(user),
		Events: make([]SecurityEventResponse, 0, len(events)),
	}
	for _, event := range events {
		response.Events = append(response.Events, SecurityEventResponse{
			Action:    string(event.Action),
			IPAddress: event.IPAddress,
			CreatedAt: event.CreatedAt,
		})
	}
	return response
}

type ErrorResponse struct {
	Kind     string   `json:"kind"`
	Messages []string `json:"messages"`
}
