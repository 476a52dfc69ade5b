// Package program implements the escrow and config settlement program.
// Every account a caller presents is re-derived or shape-checked before the
// first mutation; authority over program-owned accounts is exercised only
// through derived-address signer seeds.
package program

import (
	"crypto/sha256"
	"encoding/binary"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

// ProgramID is the canonical deployment address of the program.
var ProgramID = solana.PublicKey(sha256.Sum256([]byte("solana-escrow-lab:settlement")))

// Seed tags.
const (
	ConfigSeed = "config"
	VaultSeed  = "vault"
	EscrowSeed = "escrow"
)

func seeds(tag string, owner solana.PublicKey, discriminator []uint64) [][]byte {
	out := make([][]byte, 0, 2+len(discriminator))
	out = append(out, []byte(tag), owner[:])
	for _, d := range discriminator {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], d)
		out = append(out, b[:])
	}
	return out
}

// Derive computes the address and bump for (tag, owner[, discriminator...]).
func Derive(programID solana.PublicKey, tag string, owner solana.PublicKey, discriminator ...uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds(tag, owner, discriminator), programID)
}

// ConfigAddress derives the config record of owner.
func ConfigAddress(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, ConfigSeed, owner)
}

// VaultAddress derives the vault of owner.
func VaultAddress(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, VaultSeed, owner)
}

// EscrowAddress derives the escrow record of (maker, id).
func EscrowAddress(programID, maker solana.PublicKey, id uint64) (solana.PublicKey, uint8, error) {
	return Derive(programID, EscrowSeed, maker, id)
}

// Authority is the capability to sign for a derived address. It carries
// only public derivation inputs; there is no key material.
type Authority struct {
	Tag           string
	Owner         solana.PublicKey
	Discriminator []uint64
	Bump          uint8
}

// Seeds returns the signer seeds, bump included.
func (a Authority) Seeds() ledger.SignerSeeds {
	return append(seeds(a.Tag, a.Owner, a.Discriminator), []byte{a.Bump})
}

func configAuthority(owner solana.PublicKey, bump uint8) Authority {
	return Authority{Tag: ConfigSeed, Owner: owner, Bump: bump}
}

func vaultAuthority(owner solana.PublicKey, bump uint8) Authority {
	return Authority{Tag: VaultSeed, Owner: owner, Bump: bump}
}

func escrowAuthority(maker solana.PublicKey, id uint64, bump uint8) Authority {
	return Authority{Tag: EscrowSeed, Owner: maker, Discriminator: []uint64{id}, Bump: bump}
}
