package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

const (
	apiKeyPrefix   = "sk_"
	apiKeyLength   = 32
	apiKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateAPIKey returns a new app key: "sk_" followed by 32 random
// lowercase alphanumerics drawn from crypto/rand.
func GenerateAPIKey() (string, error) {
	out := make([]byte, 0, apiKeyLength)
	buf := make([]byte, apiKeyLength)
	// 252 is the largest multiple of 36 below 256; higher bytes are
	// rejected so every character is equally likely.
	for len(out) < apiKeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, apiKeyAlphabet[int(b)%len(apiKeyAlphabet)])
			if len(out) == apiKeyLength {
				break
			}
		}
	}
	return apiKeyPrefix + string(out), nil
}

// KeysEqual compares two API keys in constant time.
func KeysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
