// Package auth decides which connections receive the administrator capability.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// Authority compares connection credentials against a shared secret.
// An empty secret disables the administrator tier entirely.
type Authority struct {
	digest  [sha256.Size]byte
	enabled bool
}

func NewAuthority(secret string) *Authority {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Authority{}
	}
	return &Authority{digest: sha256.Sum256([]byte(secret)), enabled: true}
}

// Evaluate reports whether credential exactly matches the secret. Both sides
// are hashed first so the comparison time does not depend on their lengths.
func (a *Authority) Evaluate(credential string) bool {
	if a == nil || !a.enabled || credential == "" {
		return false
	}
	sum := sha256.Sum256([]byte(credential))
	return subtle.ConstantTimeCompare(sum[:], a.digest[:]) == 1
}

func (a *Authority) Enabled() bool {
	return a != nil && a.enabled
}
