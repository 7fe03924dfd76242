// Package crypto provides the asymmetric sealed-box primitive used to wrap
// project keys and push provider secrets, and the symmetric codec for the
// project secrets blob itself.
//
// Sealed boxes are anonymous-sender: encrypting requires only the
// recipient's public key, and only the matching private key opens the
// result. Each call uses fresh ephemeral randomness, so sealing the same
// plaintext twice yields different ciphertexts.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the byte length of public, private and symmetric keys.
const KeySize = 32

// ErrInvalidKeyMaterial is returned when a decoded key is not exactly
// KeySize bytes. Local and non-retryable.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// ErrDecryptionFailed is returned when a box or blob does not authenticate
// under the supplied key.
var ErrDecryptionFailed = errors.New("decryption failed")

var (
	initOnce sync.Once
	initErr  error
)

// Init prepares the underlying primitive. It is safe to call concurrently
// and from multiple places; only the first call does work. Seal and Open
// call it themselves, so explicit use is optional.
func Init() error {
	initOnce.Do(func() {
		// Self-test roundtrip: a broken build of the primitive must fail
		// loudly at startup, not corrupt secrets later.
		var kp Keypair
		if initErr = kp.Generate(); initErr != nil {
			return
		}
		sealed, err := box.SealAnonymous(nil, []byte("cryptly"), &kp.Public, rand.Reader)
		if err != nil {
			initErr = err
			return
		}
		opened, ok := box.OpenAnonymous(nil, sealed, &kp.Public, &kp.Private)
		if !ok || string(opened) != "cryptly" {
			initErr = errors.New("crypto self-test failed")
		}
	})
	return initErr
}

// Keypair holds a sealed-box keypair. Private may be zero when only sealing.
type Keypair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// Generate populates the keypair with fresh random keys.
func (k *Keypair) Generate() error {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	k.Public = *pub
	k.Private = *priv
	return nil
}

func (k *Keypair) PublicString() string {
	return base64.StdEncoding.EncodeToString(k.Public[:])
}

func (k *Keypair) PrivateString() string {
	return base64.StdEncoding.EncodeToString(k.Private[:])
}

// ParseKey decodes a base64 key and checks its length.
func ParseKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyMaterial, len(raw), KeySize)
	}
	copy(key[:], raw)
	return key, nil
}

// Seal encrypts plaintext to the base64-encoded recipient public key and
// returns a base64 ciphertext. The caller needs no keypair of its own.
func Seal(plaintext []byte, recipientPublicKey string) (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	pub, err := ParseKey(recipientPublicKey)
	if err != nil {
		return "", err
	}
	sealed, err := box.SealAnonymous(nil, plaintext, &pub, rand.Reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// ValidateWrappedKey checks that a string has the shape of a sealed
// project key: base64 holding a sealed box around exactly KeySize bytes.
// It cannot verify the recipient, but it rejects garbage before an
// undecryptable key copy is persisted.
func ValidateWrappedKey(wrapped string) error {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	if len(raw) != KeySize+box.AnonymousOverhead {
		return fmt.Errorf("%w: sealed key is %d bytes, want %d", ErrInvalidKeyMaterial, len(raw), KeySize+box.AnonymousOverhead)
	}
	return nil
}

// Open decrypts a base64 sealed box with the keypair's private key.
func Open(ciphertext string, kp *Keypair) ([]byte, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	opened, ok := box.OpenAnonymous(nil, raw, &kp.Public, &kp.Private)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return opened, nil
}

const nonceSize = 24

func genNonce() ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	_, err := rand.Read(nonce[:])
	return nonce, err
}

// GenerateSecretsKey mints a fresh symmetric project key.
func GenerateSecretsKey() (*[KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// EncryptSecrets encrypts a name->value mapping under the project key into
// an opaque base64 blob (nonce prepended to the secretbox).
func EncryptSecrets(key *[KeySize]byte, secrets map[string]string) (string, error) {
	payload, err := json.Marshal(secrets)
	if err != nil {
		return "", err
	}
	nonce, err := genNonce()
	if err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], payload, &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecrets opens a blob produced by EncryptSecrets.
func DecryptSecrets(key *[KeySize]byte, blob string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding blob: %w", err)
	}
	if len(raw) < nonceSize {
		return nil, ErrDecryptionFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	payload, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	var secrets map[string]string
	if err := json.Unmarshal(payload, &secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// Zero overwrites a byte slice. Used to discard ephemeral key material on
// every exit path of the operation that owns it.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey overwrites a symmetric key in place.
func ZeroKey(key *[KeySize]byte) {
	if key == nil {
		return
	}
	Zero(key[:])
}
