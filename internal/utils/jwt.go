package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	TokenTypeSession     = "session"
	PurposeEmailVerify   = "email_verify"
	defaultSessionTTL    = 7 * 24 * time.Hour
	defaultPurposeTTL    = time.Hour
	signingAlgorithmName = "HS256"
)

// JWTManager signs and verifies the two token classes of the service: long-lived
// session tokens bound to a user id, and short-lived purpose tokens carrying a
// random secret in the jti claim.
type JWTManager struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	PurposeTTL time.Duration
	Now        func() time.Time
}

type SessionClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type PurposeClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (m JWTManager) IssueSession(userID string) (string, time.Duration, error) {
	if userID == "" {
		return "", 0, ErrInvalidToken
	}
	ttl := m.SessionTTL
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	now := m.now()
	claims := SessionClaims{
		Type: TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := m.sign(claims)
	if err != nil {
		return "", 0, err
	}
	return signed, ttl, nil
}

func (m JWTManager) ParseSession(tokenString string) (string, error) {
	claims := &SessionClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.Type != TokenTypeSession || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (m JWTManager) IssuePurposeToken(purpose string, secret string) (string, time.Duration, error) {
	if purpose == "" || purpose == TokenTypeSession || secret == "" {
		return "", 0, ErrInvalidToken
	}
	ttl := m.PurposeTTL
	if ttl == 0 {
		ttl = defaultPurposeTTL
	}
	now := m.now()
	claims := PurposeClaims{
		Type: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.Issuer,
			ID:        secret,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := m.sign(claims)
	if err != nil {
		return "", 0, err
	}
	return signed, ttl, nil
}

// ParsePurposeToken returns the secret of a purpose token. Tokens issued for any
// other purpose, session tokens included, are rejected.
func (m JWTManager) ParsePurposeToken(tokenString string, purpose string) (string, error) {
	claims := &PurposeClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return "", err
	}
	if purpose == "" || claims.Type != purpose || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

func (m JWTManager) sign(claims jwt.Claims) (string, error) {
	if len(m.Secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.Secret)
}

func (m JWTManager) parse(tokenString string, claims jwt.Claims) error {
	if tokenString == "" || len(m.Secret) == 0 {
		return ErrInvalidToken
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlgorithmName}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.Secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func (m JWTManager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
