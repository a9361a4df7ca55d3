package sharing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// tokenRandomBytes gives 256 bits of entropy; RawURLEncoding yields a
	// 43-character URL-safe token.
	tokenRandomBytes = 32

	// tokenPrefixLen is how much of the raw token is kept for display in
	// staff listings. Too short to be guessable.
	tokenPrefixLen = 8
)

// NewToken returns a cryptographically random URL-safe share token.
// The raw value is shown to the caller exactly once; only its hash is stored.
func NewToken() (string, error) {
	b := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex-encoded SHA-256 hash of the raw token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// TokenPrefix returns the display prefix of a raw token.
func TokenPrefix(raw string) string {
	if len(raw) < tokenPrefixLen {
		return raw
	}
	return raw[:tokenPrefixLen]
}

var pinModulus = big.NewInt(1000000)

// NewPin returns a uniformly random 6-digit decimal PIN, zero-padded.
func NewPin() (string, error) {
	n, err := rand.Int(rand.Reader, pinModulus)
	if err != nil {
		return "", fmt.Errorf("generating pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashPin returns the hex-encoded SHA-256 hash of a PIN.
func HashPin(pin string) string {
	h := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(h[:])
}

// PinMatches compares a supplied PIN against a stored hash in constant time.
func PinMatches(storedHash, pin string) bool {
	supplied := HashPin(pin)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(supplied)) == 1
}
