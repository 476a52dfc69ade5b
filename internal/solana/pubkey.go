package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of an address.
const PublicKeyLength = 32

// Derivation limits enforced by the runtime.
const (
	MaxSeedLength = 32
	MaxSeeds      = 16
)

const pdaMarker = "ProgramDerivedAddress"

// Derivation errors.
var (
	// ErrMaxSeedLengthExceeded is returned when a seed is longer than MaxSeedLength.
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	// ErrInvalidSeeds is returned when seeds hash to a point on the ed25519 curve
	// or exceed MaxSeeds.
	ErrInvalidSeeds = errors.New("invalid seeds: address must fall off the curve")

	// ErrNoViableBump is returned when no bump in 255..0 yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// PublicKey is a 32-byte ledger address.
type PublicKey [PublicKeyLength]byte

// Well-known program identities.
var (
	SystemProgramID          = MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgramID           = MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// PublicKeyFromBase58 decodes a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode public key %q: %w", s, err)
	}
	if len(decoded) != PublicKeyLength {
		return pk, fmt.Errorf("decode public key %q: invalid length %d", s, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustPublicKeyFromBase58 decodes a base58 address and panics on failure.
// Intended for package-level constants.
func MustPublicKeyFromBase58(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("public key: invalid length %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the key bytes.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, pk[:])
	return b
}

// IsZero reports whether the key is all zeros.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Equals compares two keys.
func (pk PublicKey) Equals(other PublicKey) bool {
	return pk == other
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	decoded, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds (bump included by the caller) with programID.
// Fails if the result lands on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return PublicKey{}, ErrInvalidSeeds
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return PublicKey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk[:]) {
		return PublicKey{}, ErrInvalidSeeds
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 down for the first off-curve address.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return PublicKey{}, 0, ErrInvalidSeeds
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}
