package cryptly

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/secretlify/cryptly/pkg/crypto"
)

func TestKeypairAndWrapRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	assert.NoError(t, err)
	assert.NotEqual(t, pub, priv)

	key, err := GenerateProjectKey()
	assert.NoError(t, err)

	wrapped, err := WrapKey(key, pub)
	assert.NoError(t, err)

	unwrapped, err := UnwrapKey(wrapped, pub, priv)
	assert.NoError(t, err)
	assert.Equal(t, *key, *unwrapped)
}

func TestUnwrapKeyRejectsWrongKeypair(t *testing.T) {
	pub, _, err := GenerateKeypair()
	assert.NoError(t, err)
	otherPub, otherPriv, err := GenerateKeypair()
	assert.NoError(t, err)

	key, err := GenerateProjectKey()
	assert.NoError(t, err)
	wrapped, err := WrapKey(key, pub)
	assert.NoError(t, err)

	_, err = UnwrapKey(wrapped, otherPub, otherPriv)
	assert.IsError(t, err, crypto.ErrDecryptionFailed)
}

func TestSecretsBlobRoundTrip(t *testing.T) {
	key, err := GenerateProjectKey()
	assert.NoError(t, err)

	secrets := map[string]string{"API_KEY": "hunter2", "DB_URL": "postgres://localhost"}
	blob, err := EncryptSecrets(key, secrets)
	assert.NoError(t, err)

	got, err := DecryptSecrets(key, blob)
	assert.NoError(t, err)
	assert.Equal(t, secrets, got)
}
