package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// UnusablePasswordPrefix marks a password column that can never match a login.
// bcrypt hashes always start with "$", so a "!" value is never a valid hash.
const UnusablePasswordPrefix = "!"

// GenerateRandomToken returns n random bytes, hex encoded.
func GenerateRandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 of token. Onboarding and invitation
// tokens are stored only in this form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

// ComparePassword reports whether password matches hashed.
func ComparePassword(hashed, password string) bool {
	return IsUsablePassword(hashed) &&
		bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// UnusablePassword returns a random marker value for accounts whose
// credential must be established out of band.
func UnusablePassword() string {
	suffix, err := GenerateRandomToken(20)
	if err != nil {
		suffix = "unset"
	}
	return UnusablePasswordPrefix + suffix
}

// IsUsablePassword reports whether hashed can ever match a plain password.
func IsUsablePassword(hashed string) bool {
	return hashed != "" && !strings.HasPrefix(hashed, UnusablePasswordPrefix)
}

// SecureCompareStrings compares two secrets in constant time.
func SecureCompareStrings(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SanitizeLikePattern escapes LIKE wildcards so user input matches literally.
// Callers must pair it with ESCAPE '\':
//
//	query.Where("name LIKE ? ESCAPE '\\'", "%"+utils.SanitizeLikePattern(q)+"%")
func SanitizeLikePattern(pattern string) string {
	return likeEscaper.Replace(pattern)
}
