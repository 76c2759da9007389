package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdmin creates the initial admin account on first boot if no users
// exist. The generated password is logged once and must be changed
// immediately. Returns the generated password, or empty when seeding
// was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}

	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", "admin",
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}

// Authenticate verifies a username/password pair and returns the user.
// Inactive accounts and unknown usernames both come back as
// ErrInvalidCredentials so callers cannot probe for valid usernames.
func Authenticate(ctx context.Context, users UserRepository, username, password string) (*User, error) {
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
