package service

import (
	"time"

	"accounts/internal/utils"
)

// JWTTokenIssuer adapts utils.JWTManager to TokenIssuer and translates its errors
// into the service taxonomy.
type JWTTokenIssuer struct {
	Manager *utils.JWTManager
}

func (j JWTTokenIssuer) IssueSession(userID string) (string, time.Duration, error) {
	if j.Manager == nil {
		return "", 0, ErrInvalidToken
	}
	return j.Manager.IssueSession(userID)
}

func (j JWTTokenIssuer) ParseSession(token string) (string, error) {
	if j.Manager == nil {
		return "", ErrInvalidToken
	}
	userID, err := j.Manager.ParseSession(token)
	return userID, translateTokenError(err)
}

func (j JWTTokenIssuer) IssueEmailVerification(secret string) (string, time.Duration, error) {
	if j.Manager == nil {
		return "", 0, ErrInvalidToken
	}
	return j.Manager.IssuePurposeToken(utils.PurposeEmailVerify, secret)
}

func (j JWTTokenIssuer) ParseEmailVerification(token string) (string, error) {
	if j.Manager == nil {
		return "", ErrInvalidToken
	}
	secret, err := j.Manager.ParsePurposeToken(token, utils.PurposeEmailVerify)
	return secret, translateTokenError(err)
}

// expired and malformed tokens are reported alike
func translateTokenError(err error) error {
	if err != nil {
		return ErrInvalidToken
	}
	return nil
}
