package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used by HashToken.
const DefaultCost = 12

// HashToken returns the bcrypt hash of a static bearer token, suitable for
// MCP_API_TOKEN_BCRYPT.
//
// bcrypt only reads the first 72 bytes of its input. Longer tokens are
// refused rather than silently truncated.
func HashToken(plaintext string, cost int) (string, error) {
	if plaintext == "" {
		return "", errors.New("auth: token must not be empty")
	}
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: token must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing token: %w", err)
	}
	return string(hashed), nil
}

// verifyHashedToken reports whether plaintext matches a bcrypt hash.
func verifyHashedToken(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: token does not match hash")
		}
		return fmt.Errorf("auth: comparing token hash: %w", err)
	}
	return nil
}
