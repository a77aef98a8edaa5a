// Package auth guards the operator endpoints with a bcrypt-hashed bearer token.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates the presented token does not match the configured hash.
	ErrInvalidToken = errors.New("invalid token")
)

// Service verifies admin bearer tokens. A Service with no hash configured
// accepts every caller, matching the open admin listing of a local deployment.
type Service struct {
	hash []byte
}

// NewService builds a verifier from a bcrypt hash. An empty hash disables the
// check.
func NewService(tokenHash string) (*Service, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return &Service{}, nil
	}
	if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
		return nil, fmt.Errorf("invalid admin token hash: %w", err)
	}
	return &Service{hash: []byte(tokenHash)}, nil
}

// Enabled reports whether a token is required.
func (s *Service) Enabled() bool {
	return s != nil && len(s.hash) > 0
}

// Verify checks token against the configured hash.
func (s *Service) Verify(token string) error {
	if !s.Enabled() {
		return nil
	}
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken produces the value to configure as ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", errors.New("admin token must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
