// Package security provides endpoint access key verification
package security

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const hashedKeyPrefix = "$2"

// HashAccessKey hashes an endpoint access key for storage in a flow definition.
func HashAccessKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAccessKey checks a presented key against the configured one. Flow
// definitions may carry either a bcrypt hash or a plaintext key (legacy
// editors); both paths avoid leaking timing on the comparison.
func VerifyAccessKey(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	if strings.HasPrefix(configured, hashedKeyPrefix) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
