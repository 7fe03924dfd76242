// Package cryptly is the root facade over the secret distribution core:
// keypair generation, the symmetric project-blob codec, and key wrapping.
// Everything here delegates to pkg/crypto; the facade exists so embedders
// need a single import for the common client-side operations.
package cryptly

import (
	"github.com/secretlify/cryptly/pkg/crypto"
)

const (
	// PublicKeyEnv and PrivateKeyEnv name the environment variables the
	// CLI and embedders read operator key material from.
	PublicKeyEnv  = "CRYPTLY_PUBLIC_KEY"
	PrivateKeyEnv = "CRYPTLY_PRIVATE_KEY"
)

// GenerateKeypair mints a fresh sealed-box keypair, base64-encoded.
func GenerateKeypair() (pub string, priv string, err error) {
	var kp crypto.Keypair
	if err := kp.Generate(); err != nil {
		return "", "", err
	}
	return kp.PublicString(), kp.PrivateString(), nil
}

// GenerateProjectKey mints a fresh symmetric project key. The caller owns
// it and should zero it when done.
func GenerateProjectKey() (*[crypto.KeySize]byte, error) {
	return crypto.GenerateSecretsKey()
}

// EncryptSecrets seals a name->value mapping into an opaque blob under the
// project key.
func EncryptSecrets(key *[crypto.KeySize]byte, secrets map[string]string) (string, error) {
	return crypto.EncryptSecrets(key, secrets)
}

// DecryptSecrets opens a blob produced by EncryptSecrets.
func DecryptSecrets(key *[crypto.KeySize]byte, blob string) (map[string]string, error) {
	return crypto.DecryptSecrets(key, blob)
}

// WrapKey seals the project key to a member's public key, producing the
// blob stored in the project's per-member key entries.
func WrapKey(key *[crypto.KeySize]byte, memberPublicKey string) (string, error) {
	return crypto.Seal(key[:], memberPublicKey)
}

// UnwrapKey opens a wrapped project key with the member's own keypair.
func UnwrapKey(wrapped string, publicKey, privateKey string) (*[crypto.KeySize]byte, error) {
	pub, err := crypto.ParseKey(publicKey)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ParseKey(privateKey)
	if err != nil {
		return nil, err
	}
	kp := crypto.Keypair{Public: pub, Private: priv}
	raw, err := crypto.Open(wrapped, &kp)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(raw)
	if len(raw) != crypto.KeySize {
		return nil, crypto.ErrInvalidKeyMaterial
	}
	var key [crypto.KeySize]byte
	copy(key[:], raw)
	return &key, nil
}
