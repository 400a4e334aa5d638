package service

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 10

type AccountConfig struct {
	SessionTTL           time.Duration
	VerificationTokenTTL time.Duration
	ResetCodeTTL         time.Duration
	ResetCodeLength      int
	UpstreamTimeout      time.Duration
	AppBaseURL           string
	AvatarMaxBytes       int64
}

type Mailer interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

type StoredObject struct {
	URL string
	ID  string
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (StoredObject, error)
	Destroy(ctx context.Context, objectID string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

type TokenIssuer interface {
	IssueSession(userID string) (string, time.Duration, error)
	ParseSession(token string) (string, error)
	IssueEmailVerification(secret string) (string, time.Duration, error)
	ParseEmailVerification(token string) (string, error)
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

type BcryptPasswordHasher struct {
	Cost int
}

func (h BcryptPasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	cost := h.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptPasswordHasher) Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
