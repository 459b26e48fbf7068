package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RandomResetTokens issues 20 random bytes, hex encoded, and stores their
// sha256.
type RandomResetTokens struct{}

func (RandomResetTokens) New() (string, string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token := hex.EncodeToString(b)
	return token, RandomResetTokens{}.Hash(token), nil
}

func (RandomResetTokens) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
