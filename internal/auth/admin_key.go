package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyVerifier checks the X-Admin-Key header against a bcrypt hash.
type AdminKeyVerifier struct {
	hash []byte
}

// NewAdminKeyVerifier creates a verifier. With an empty hash every key is rejected.
func NewAdminKeyVerifier(hash string) *AdminKeyVerifier {
	return &AdminKeyVerifier{hash: []byte(hash)}
}

// Enabled reports whether an admin key is configured.
func (v *AdminKeyVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify reports whether key matches the configured hash.
func (v *AdminKeyVerifier) Verify(key string) bool {
	if !v.Enabled() || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(key)) == nil
}
