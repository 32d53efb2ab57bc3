// Package identity derives stable, non-reversible identifiers from request metadata.
package identity

import (
	"crypto/sha256"
	"fmt"
)

// UnknownIP is the placeholder recorded when no client address could be resolved.
const UnknownIP = "unknown"

// Hash returns the first 32 hex characters of SHA-256(raw+salt).
// Empty input and the UnknownIP placeholder hash to "".
func Hash(raw, salt string) string {
	if raw == "" || raw == UnknownIP {
		return ""
	}
	sum := sha256.Sum256([]byte(raw + salt))
	return fmt.Sprintf("%x", sum)[:32]
}

// Hasher carries the process-wide salts for IP and User-Agent hashing.
type Hasher struct {
	ipSalt string
	uaSalt string
}

func NewHasher(ipSalt, uaSalt string) *Hasher {
	return &Hasher{ipSalt: ipSalt, uaSalt: uaSalt}
}

func (h *Hasher) HashIP(ip string) string {
	return Hash(ip, h.ipSalt)
}

func (h *Hasher) HashUserAgent(ua string) string {
	return Hash(ua, h.uaSalt)
}
