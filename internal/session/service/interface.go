package service

// TokenService generates and hashes opaque session tokens.
type TokenService interface {
	// GenerateToken creates a new random token, returning the plain token
	// (shown to the caller once) and its hash (the storage key).
	GenerateToken() (plainToken string, tokenHash string, err error)

	// HashToken hashes a plain token for lookup.
	HashToken(plainToken string) string
}

// PasswordService hashes and verifies login credentials.
type PasswordService interface {
	// HashPassword hashes a plain password for storage.
	HashPassword(plainPassword string) (string, error)

	// ComparePassword performs a constant-time comparison between a plain
	// password and its stored hash.
	ComparePassword(plainPassword, hashedPassword string) bool
}
