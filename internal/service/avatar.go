package service

import (
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const DefaultAvatarMaxBytes = 1 << 20

var allowedAvatarTypes = []string{"image/jpeg", "image/png"}

// detectAvatarType sniffs the image content; the client supplied filename and
// content type are not trusted.
func detectAvatarType(data []byte, maxBytes int64) (string, string, error) {
	if len(data) == 0 || int64(len(data)) > maxBytes {
		return "", "", ErrUnsupportedImage
	}
	detected := mimetype.Detect(data)
	for _, allowed := range allowedAvatarTypes {
		if detected.Is(allowed) {
			return allowed, detected.Extension(), nil
		}
	}
	return "", "", ErrUnsupportedImage
}

func avatarObjectKey(userID uuid.UUID, now time.Time, extension string) string {
	return fmt.Sprintf("avatars/%d/%d/%d/%s/%s%s", now.Year(), now.Month(), now.Day(), userID, uuid.New(), extension)
}
