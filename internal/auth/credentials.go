// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/bgapp-platform/bgapp/internal/logging"
)

// ErrBadCredentials is returned for any username/password mismatch. The
// message is identical for unknown users and wrong passwords.
var ErrBadCredentials = errors.New("invalid credentials")

// CredentialStore verifies the single admin account configured for JWT
// and Basic modes. The stored password is always a bcrypt hash; a
// plaintext value from config is hashed at construction so the cleartext
// never lives beyond startup.
type CredentialStore struct {
	username string
	hash     []byte
	roles    []string
}

// NewCredentialStore builds the store from config values. Values already
// in bcrypt form (prefix $2a$/$2b$/$2y$) are kept as-is.
func NewCredentialStore(username, password string, roles []string) (*CredentialStore, error) {
	if username == "" || password == "" {
		return nil, errors.New("admin username and password are required")
	}

	var hash []byte
	if isBcryptHash(password) {
		hash = []byte(password)
	} else {
		logging.Warn().Msg("Admin password configured as plaintext, hashing at startup; prefer a bcrypt hash in config")
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing admin password: %w", err)
		}
		hash = h
	}

	if len(roles) == 0 {
		roles = []string{"admin"}
	}
	return &CredentialStore{username: username, hash: hash, roles: roles}, nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Verify checks a username/password pair and returns the account roles.
// The bcrypt comparison runs even for unknown usernames so response
// timing does not reveal whether the account exists.
func (s *CredentialStore) Verify(username, password string) ([]string, error) {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.hash, []byte(password))
	if !userMatch || passErr != nil {
		return nil, ErrBadCredentials
	}
	roles := make([]string, len(s.roles))
	copy(roles, s.roles)
	return roles, nil
}

// Username returns the configured admin username.
func (s *CredentialStore) Username() string {
	return s.username
}
