package utils

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// ResetCodeAlphabet is upper case only; user input is folded with NormalizeResetCode.
const ResetCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func GenerateRandomToken(size int) (string, error) {
	buffer := make([]byte, size)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateResetCode returns a code of the given length drawn uniformly from ResetCodeAlphabet.
func GenerateResetCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid reset code length %d", length)
	}
	max := big.NewInt(int64(len(ResetCodeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(ResetCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func NormalizeResetCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func GravatarURL(email string) string {
	sum := md5.Sum([]byte(NormalizeEmail(email)))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?s=200&r=pg&d=mm"
}
