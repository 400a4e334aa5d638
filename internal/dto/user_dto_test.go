package dto

import (
	"encoding/json"
	"testing"
	"time"

	"accounts/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserResponseFromEntityOmitsCredentials(t *testing.T) {
	objectID := "avatars/2024/1/1/x.png"
	avatar := "https://cdn.test/" + objectID
	pending := "pending-hash"
	resetHash := "reset-hash"
	expires := time.Now()
	user := &entity.User{
		ID:                       uuid.New(),
		FirstName:                "Ada",
		LastName:                 "Lovelace",
		FullName:                 "Ada Lovelace",
		Email:                    "ada@example.com",
		PasswordHash:             "$2a$10$hash",
		AvatarURL:                &avatar,
		AvatarObjectID:           &objectID,
		PendingVerificationToken: &pending,
		ResetCodeHash:            &resetHash,
		ResetCodeExpiresAt:       &expires,
	}

	body, err := json.Marshal(UserResponseFromEntity(user))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))
	assert.Equal(t, "ada@example.com", fields["email"])
	assert.Equal(t, avatar, fields["avatar_url"])
	for _, key := range []string{"password", "password_hash", "reset_code", "reset_code_hash", "pending_verification_token", "avatar_object_id"} {
		assert.NotContains(t, fields, key)
	}
	assert.NotContains(t, string(body), "$2a$10$hash")
	assert.NotContains(t, string(body), "pending-hash")
	assert.NotContains(t, string(body), "reset-hash")
}

func TestAccountExportFromEntities(t *testing.T) {
	ip := "10.0.0.1"
	userID := uuid.New()
	export := AccountExportFromEntities(&entity.User{ID: userID, Email: "ada@example.com"}, []entity.SecurityLog{
		{UserID: &userID, Action: entity.LoginSuccess, IPAddress: &ip},
	})
	require.Len(t, export.Events, 1)
	assert.Equal(t, "login_success", export.Events[0].Action)
	assert.Equal(t, userID.String(), export.User.ID)
}
