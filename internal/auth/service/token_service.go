// Package service provides admin token generation and verification for the operator API.
//
// Tokens are random 32-byte values handed to operators once. Only the Argon2id hash is
// kept in configuration (ADMIN_TOKEN_HASH), so a leaked environment does not leak the token.
package service

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// TokenVerifier checks a presented bearer token.
type TokenVerifier interface {
	Verify(plainToken string) bool
}

// AdminTokenService generates and verifies admin API tokens.
type AdminTokenService struct {
	hasher    *pwdhash.PasswordHasher
	tokenHash string
}

// NewAdminTokenService creates an AdminTokenService verifying against tokenHash.
// An empty tokenHash rejects every token.
func NewAdminTokenService(tokenHash string) (*AdminTokenService, error) {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyModerate))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create token hasher")
	}
	return &AdminTokenService{hasher: hasher, tokenHash: tokenHash}, nil
}

// Generate creates a new random token and its Argon2id hash.
func (s *AdminTokenService) Generate() (plainToken string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate random token")
	}
	plainToken = base64.URLEncoding.EncodeToString(randomBytes)

	tokenHash, err = s.Hash(plainToken)
	if err != nil {
		return "", "", err
	}
	return plainToken, tokenHash, nil
}

// Hash hashes a plain token with Argon2id.
func (s *AdminTokenService) Hash(plainToken string) (string, error) {
	tokenHash, err := s.hasher.Hash([]byte(plainToken))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash token")
	}
	return tokenHash, nil
}

// Verify reports whether plainToken matches the configured hash.
func (s *AdminTokenService) Verify(plainToken string) bool {
	if s.tokenHash == "" || plainToken == "" {
		return false
	}
	ok, err := s.hasher.Verify([]byte(plainToken), s.tokenHash)
	if err != nil {
		return false
	}
	return ok
}
