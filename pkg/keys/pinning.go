// Package keys implements trust-on-first-use pinning of member public
// keys. A pinned key that later changes is surfaced to the operator
// before any project key is wrapped for that member.
package keys

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/secretlify/cryptly/pkg/model"
)

const defaultFileName = ".cryptly-known-keys.json"

// PinnedKey is one member's recorded public key.
type PinnedKey struct {
	UserID      model.UserID `json:"user_id"`
	Username    string       `json:"username"`
	PublicKey   string       `json:"public_key"`
	Fingerprint string       `json:"fingerprint"`
}

// Pinboard is the operator-local record of member public keys, persisted
// as a JSON file in the home directory.
type Pinboard struct {
	path string
	Keys map[model.UserID]PinnedKey `json:"keys"`
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, defaultFileName), nil
}

// Load reads the pinboard at path; an empty path means the default
// location. A missing file yields an empty pinboard.
func Load(path string) (*Pinboard, error) {
	if path == "" {
		var err error
		if path, err = defaultPath(); err != nil {
			return nil, err
		}
	}
	pb := &Pinboard{path: path, Keys: map[model.UserID]PinnedKey{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pb, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, pb); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if pb.Keys == nil {
		pb.Keys = map[model.UserID]PinnedKey{}
	}
	return pb, nil
}

func (pb *Pinboard) Save() error {
	raw, err := json.MarshalIndent(pb, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(pb.path, raw, 0o600)
}

// Pin records a member's public key. It reports whether the entry is new
// or replaces a different key, returning the previous entry in the latter
// case so the caller can warn about the change.
func (pb *Pinboard) Pin(id model.UserID, username, publicKey string) (changed bool, previous PinnedKey) {
	current, exists := pb.Keys[id]
	if exists && current.PublicKey == publicKey {
		return false, current
	}
	pb.Keys[id] = PinnedKey{
		UserID:      id,
		Username:    username,
		PublicKey:   publicKey,
		Fingerprint: Fingerprint(publicKey),
	}
	return true, current
}

// Lookup returns the pinned entry for a member, if any.
func (pb *Pinboard) Lookup(id model.UserID) (PinnedKey, bool) {
	pk, ok := pb.Keys[id]
	return pk, ok
}

// Fingerprint renders a SHA-256 digest of the public key as colon-grouped
// hex, four characters per group.
func Fingerprint(publicKey string) string {
	digest := sha256.Sum256([]byte(publicKey))
	hexStr := fmt.Sprintf("%x", digest)
	groups := make([]string, 0, len(hexStr)/4)
	for i := 0; i < len(hexStr); i += 4 {
		groups = append(groups, hexStr[i:i+4])
	}
	return strings.Join(groups, ":")
}

const fingerprintWordCount = 6

// FingerprintWords renders the key digest as a six-word phrase from the
// BIP-39 wordlist, eleven digest bits per word. Easier to compare over a
// call than hex.
func FingerprintWords(publicKey string) string {
	digest := sha256.Sum256([]byte(publicKey))
	words := make([]string, fingerprintWordCount)
	wordlist := bip39.GetWordList()
	for i := range words {
		idx := 0
		for j := 0; j < 11; j++ {
			bit := i*11 + j
			if digest[bit/8]&(1<<(7-bit%8)) != 0 {
				idx |= 1 << (10 - j)
			}
		}
		words[i] = wordlist[idx]
	}
	return strings.Join(words, "-")
}
