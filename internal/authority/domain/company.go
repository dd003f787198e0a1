package domain

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

const MaxNameLength = 100

// Company is a registered tenant. Credentials are generated once at
// registration and never change. Only the secret's digest is stored;
// APISecret is set on the value NewCompany returns and nowhere else.
type Company struct {
	ID           string
	Name         string
	APIKey       string
	APISecret    string
	SecretDigest string
	CreatedAt    time.Time
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: company name is required", apperr.ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: company name must not exceed %d characters", apperr.ErrInvalid, MaxNameLength)
	}
	return nil
}

func NewCompany(name string) (Company, error) {
	if err := ValidateName(name); err != nil {
		return Company{}, err
	}
	secret, err := generateSecret()
	if err != nil {
		return Company{}, err
	}
	return Company{
		ID:           uuid.NewString(),
		Name:         name,
		APIKey:       generateKey(),
		APISecret:    secret,
		SecretDigest: DigestSecret(secret),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// generateKey returns 32 lowercase hex characters.
func generateKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// generateSecret returns the base64 HMAC-SHA256 of a random uuid under a
// random key.
func generateSecret() (string, error) {
	key := make([]byte, 64)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	id := uuid.New()
	mac := hmac.New(sha256.New, key)
	mac.Write(id[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DigestSecret is the hex SHA-256 of secret, the form the stores keep.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

var dummyDigest = DigestSecret("no-such-company")

// SecretMatches compares the digest of presented against the stored digest in
// constant time. A nil company still pays for one comparison.
func SecretMatches(c *Company, presented string) bool {
	want := dummyDigest
	if c != nil {
		want = c.SecretDigest
	}
	got := DigestSecret(presented)
	eq := subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
	return eq && c != nil
}
