package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Session token format: bqs_{prefix}_{secret}
// Example: bqs_7a9x3k0c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	TokenPrefixLen = 8  // hex encoded 4 bytes, indexed for lookup
	TokenSecretLen = 32 // hex encoded 16 bytes
)

var (
	// ErrInvalidTokenFormat indicates the bearer token is malformed.
	ErrInvalidTokenFormat = errors.New("invalid session token format")

	tokenFormatRegex = regexp.MustCompile(`^bqs_([a-f0-9]{8})_([a-f0-9]{32})$`)
)

// GeneratedToken contains the parts of a newly issued session token.
type GeneratedToken struct {
	Plaintext string // returned to the client once
	Hash      string // stored
	Prefix    string // stored, used for lookup
}

// GenerateSessionToken creates a random session token.
func GenerateSessionToken() (*GeneratedToken, error) {
	prefixBytes := make([]byte, TokenPrefixLen/2)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secretBytes := make([]byte, TokenSecretLen/2)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	prefix := hex.EncodeToString(prefixBytes)
	plaintext := fmt.Sprintf("bqs_%s_%s", prefix, hex.EncodeToString(secretBytes))

	return &GeneratedToken{
		Plaintext: plaintext,
		Hash:      HashToken(plaintext),
		Prefix:    prefix,
	}, nil
}

// ParseSessionToken validates the format and returns the lookup prefix.
func ParseSessionToken(token string) (string, error) {
	m := tokenFormatRegex.FindStringSubmatch(token)
	if m == nil {
		return "", ErrInvalidTokenFormat
	}
	return m[1], nil
}

// HashToken digests a session token for storage. Tokens carry 160 random
// bits, so a fast digest is enough; passwords use Argon2id instead.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken compares token against a stored digest in constant time.
func VerifyToken(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}

// QuickHash returns a short SHA256 digest for cache keys.
// This is NOT for credential storage.
func QuickHash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}
