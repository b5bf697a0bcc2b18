// Package auth guards the MCP endpoints and verifies webhook signatures.
//
// BEARER CREDENTIALS:
// A request to /mcp/* carries "Authorization: Bearer <token>". The token is
// accepted when it matches any configured credential:
//
//  1. a static token (MCP_API_TOKEN), compared in constant time
//  2. a bcrypt hash of the static token (MCP_API_TOKEN_BCRYPT)
//  3. an HS256 JWT signed with MCP_JWT_SECRET and issued by "garmin-mcp"
//
// With none configured every request is rejected. Tokens are minted
// elsewhere; this package only checks them.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the required "iss" claim of bearer JWTs.
const Issuer = "garmin-mcp"

// TokenService validates HS256 JWTs.
type TokenService struct {
	secret []byte
}

// NewTokenService rejects secrets shorter than 16 bytes.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Validate parses tokenStr and returns its subject.
//
// The keyfunc pins HMAC so an "alg: none" or RS256 token signed with a
// public key is refused before the signature is checked. An exp claim is
// required and must be in the future.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
