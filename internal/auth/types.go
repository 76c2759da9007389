package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern restricts usernames to a safe, URL-friendly charset.
var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,31}$`)

// IsValidUsername reports whether a username is acceptable: lowercase
// alphanumeric with _ or -, 3-32 characters, starting alphanumeric.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role determines what a user may do through the API.
type Role string

// Roles. Admins manage the device registry; viewers read state and
// sessions and watch the event feed.
const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleViewer
}

// User is an API account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sentinel errors.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user account is inactive")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrTokenInvalid       = errors.New("auth: invalid token")
)
