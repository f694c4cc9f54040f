// Package util provides small shared helpers for the SafeBot application.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
)

// GenerateSecureToken returns a cryptographically random hex token of
// byteLength random bytes. Used for verification session and confirmation
// tokens, which guard the identity handshake.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("token byte length must be positive, got %d", byteLength)
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID is in the format "{prefix}{hex_string}". Uses math/rand/v2;
// these IDs are record keys, not credentials.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[mathrand.IntN(16)])
	}

	return builder.String()
}

// GenerateStudentID generates a unique student record ID with "s_" prefix.
func GenerateStudentID() string {
	return GenerateRandomID("s_", 32)
}

// GenerateAdminID generates a unique admin record ID with "a_" prefix.
func GenerateAdminID() string {
	return GenerateRandomID("a_", 32)
}
