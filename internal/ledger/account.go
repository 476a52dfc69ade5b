// Package ledger is an in-process execution host for on-chain programs.
// It models accounts, rent, the clock sysvar, cross-program invocation and
// all-or-nothing transaction semantics closely enough to exercise program
// logic the way the cluster runtime would.
package ledger

import (
	"time"

	"solana-escrow-lab/internal/solana"
)

// NativeLoaderID owns every registered program account.
var NativeLoaderID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")

// Size limits enforced by the host.
const (
	// MaxPermittedDataIncrease bounds how far an existing account may grow in one instruction.
	MaxPermittedDataIncrease = 10 * 1024
	// MaxAccountDataLen bounds the total size of any account.
	MaxAccountDataLen = 10 * 1024 * 1024
	// MaxInvokeDepth bounds nested cross-program invocation.
	MaxInvokeDepth = 4
)

// Account is one addressed storage slot.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      solana.PublicKey
	Executable bool
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = make([]byte, len(a.Data))
		copy(c.Data, a.Data)
	}
	return &c
}

// AccountStorageOverhead is charged on top of the data length by the rent model.
const AccountStorageOverhead = 128

// Rent is the minimum-retention model.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64 // years
}

// DefaultRent mirrors mainnet parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2,
	}
}

// MinimumBalance returns the lamports a slot of dataLen bytes must hold.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether lamports cover the minimum balance for dataLen.
func (r Rent) IsExempt(lamports uint64, dataLen int) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

// Clock is the clock sysvar seen by a transaction.
type Clock struct {
	Slot          uint64
	UnixTimestamp int64
}

func clockAt(slot uint64, now time.Time) Clock {
	return Clock{Slot: slot, UnixTimestamp: now.Unix()}
}
