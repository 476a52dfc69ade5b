package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keypair seed: invalid length %d", len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes accepts the 64-byte secret||public form.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair: invalid length %d", len(b))
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !kp.priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(b[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("keypair: public half does not match secret")
	}
	return kp, nil
}

// LoadKeypair reads a keypair file: a JSON byte array as written by
// solana-keygen, or a base58 string of the 64 bytes.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	text := strings.TrimSpace(string(data))

	if strings.HasPrefix(text, "[") {
		var raw []byte
		var ints []int
		if err := json.Unmarshal([]byte(text), &ints); err != nil {
			return nil, fmt.Errorf("parse keypair %s: %w", path, err)
		}
		for _, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("parse keypair %s: byte out of range", path)
			}
			raw = append(raw, byte(v))
		}
		return KeypairFromBytes(raw)
	}

	raw, err := base58.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	return KeypairFromBytes(raw)
}

// Save writes the keypair as a JSON byte array with 0600 permissions.
func (k *Keypair) Save(path string) error {
	ints := make([]int, len(k.priv))
	for i, b := range k.priv {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// PublicKey returns the address of the keypair.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

// PrivateKey exposes the signing key for transaction signing.
func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.priv
}
