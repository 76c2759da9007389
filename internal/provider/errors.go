package provider

import "errors"

var (
	// ErrUnauthorized indicates the access token was rejected even after a
	// refresh attempt.
	ErrUnauthorized = errors.New("provider: unauthorized")

	// ErrDeviceNotFound indicates the provider does not know the device.
	ErrDeviceNotFound = errors.New("provider: device not found")

	// ErrUnavailable indicates the provider API returned a server error or
	// was unreachable.
	ErrUnavailable = errors.New("provider: unavailable")

	// ErrTokenRefresh indicates the refresh-token exchange failed.
	ErrTokenRefresh = errors.New("provider: token refresh failed")
)
