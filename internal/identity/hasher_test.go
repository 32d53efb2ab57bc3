package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_Deterministic(t *testing.T) {
	a := Hash("203.0.113.7", "salt")
	b := Hash("203.0.113.7", "salt")

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestHash_MatchesTruncatedSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("203.0.113.7" + "salt"))
	want := hex.EncodeToString(sum[:])[:32]

	assert.Equal(t, want, Hash("203.0.113.7", "salt"))
}

func TestHash_SaltChangesOutput(t *testing.T) {
	assert.NotEqual(t, Hash("203.0.113.7", "a"), Hash("203.0.113.7", "b"))
}

func TestHash_EmptyAndUnknown(t *testing.T) {
	assert.Equal(t, "", Hash("", "salt"))
	assert.Equal(t, "", Hash(UnknownIP, "salt"))
}

func TestHasher_SeparateSalts(t *testing.T) {
	h := NewHasher("ip-salt", "ua-salt")

	assert.Equal(t, Hash("x", "ip-salt"), h.HashIP("x"))
	assert.Equal(t, Hash("x", "ua-salt"), h.HashUserAgent("x"))
	assert.NotEqual(t, h.HashIP("x"), h.HashUserAgent("x"))
	assert.Equal(t, "", h.HashIP(""))
}
