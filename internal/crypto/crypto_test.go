package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignQueryAtDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "key", Secret: "topsecret"}

	signed := auth.SignQueryAt("symbol=ETHUSDT&side=BUY", 1700000000000)

	require.Contains(t, signed, "timestamp=1700000000000")
	require.Contains(t, signed, "&signature=")

	// Recompute the signature over everything before &signature=.
	idx := strings.LastIndex(signed, "&signature=")
	payload := signed[:idx]
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte(payload))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, payload+"&signature="+want, signed)
}

func TestSignQueryAtEmptyQuery(t *testing.T) {
	auth := &HMACAuth{Secret: "s"}
	signed := auth.SignQueryAt("", 1234)
	assert.True(t, strings.HasPrefix(signed, "timestamp=1234&signature="))
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123", Secret: "verysecret"}
	s := auth.String()
	assert.NotContains(t, s, "abcdef123")
	assert.NotContains(t, s, "verysecret")
	assert.Contains(t, s, "abcd****")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey("not-hex", "pw")
	assert.Error(t, err)

	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)

	_, err = EncryptKey("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "")
	assert.Error(t, err)
}

func TestLoadSigningKeyFromRaw(t *testing.T) {
	key, err := LoadSigningKey(KeyConfig{
		RawPrivateKey: "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	})
	require.NoError(t, err)
	assert.NotNil(t, key.Public())
}

func TestLoadSigningKeyNoSource(t *testing.T) {
	_, err := LoadSigningKey(KeyConfig{})
	assert.Error(t, err)
}
