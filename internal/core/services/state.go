package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// stateBytes is the entropy of an OAuth state token.
const stateBytes = 32

// IssueState generates a cryptographically random CSRF state token.
func IssueState() (string, error) {
	return generateRandomString(stateBytes)
}

// ValidateState reports whether the state returned by the platform matches
// the one stored in the browser. An absent stored state never validates.
func ValidateState(received, stored string) bool {
	if received == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(stored)) == 1
}

// generateRandomString returns n random bytes encoded as unpadded base64url.
func generateRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
