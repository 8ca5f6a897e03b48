package secrets

import (
	"crypto/rand"
	"encoding/base64"
)

// OpaqueToken returns a URL-safe random string with 256 bits of entropy,
// suitable as a single-use bearer credential (email verification, password
// reset).
func OpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
