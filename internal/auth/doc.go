// Package auth provides authentication for the Runtrack Core API.
//
// It implements a two-role model (admin manages the registry, viewer
// reads state and sessions) with:
//   - Argon2id password hashing in PHC string format
//   - Short-lived HS256 JWT access tokens, validated by signature only
//   - First-boot admin seeding with a generated password
//
// Token validation never touches the database; revocation is handled by
// keeping the TTL short.
package auth
