package ledger

import (
	"fmt"
	"math/bits"

	"solana-escrow-lab/internal/solana"
)

// AccountView is an account as seen by one invocation, carrying the
// per-call signer and writable privileges. Mutations go straight to the
// transaction's working copy; the host checks them when the call returns.
type AccountView struct {
	key      solana.PublicKey
	signer   bool
	writable bool
	account  *Account
}

// NewAccountView builds a standalone view, used by tests of pure checks.
func NewAccountView(key solana.PublicKey, signer, writable bool, account *Account) *AccountView {
	if account == nil {
		account = &Account{Owner: solana.SystemProgramID}
	}
	return &AccountView{key: key, signer: signer, writable: writable, account: account}
}

func (v *AccountView) Key() solana.PublicKey   { return v.key }
func (v *AccountView) IsSigner() bool          { return v.signer }
func (v *AccountView) IsWritable() bool        { return v.writable }
func (v *AccountView) Lamports() uint64        { return v.account.Lamports }
func (v *AccountView) Owner() solana.PublicKey { return v.account.Owner }
func (v *AccountView) Executable() bool        { return v.account.Executable }
func (v *AccountView) DataLen() int            { return len(v.account.Data) }

// Data returns the live data slice; writes are visible immediately.
func (v *AccountView) Data() []byte { return v.account.Data }

// IsEmpty reports whether the slot carries no data.
func (v *AccountView) IsEmpty() bool { return len(v.account.Data) == 0 }

// IsOwnedBy reports whether program owns the slot.
func (v *AccountView) IsOwnedBy(program solana.PublicKey) bool {
	return v.account.Owner == program
}

// AddLamports credits n lamports.
func (v *AccountView) AddLamports(n uint64) error {
	sum, carry := bits.Add64(v.account.Lamports, n, 0)
	if carry != 0 {
		return ErrArithmeticOverflow
	}
	v.account.Lamports = sum
	return nil
}

// SubLamports debits n lamports.
func (v *AccountView) SubLamports(n uint64) error {
	if v.account.Lamports < n {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientLamports, v.account.Lamports, n)
	}
	v.account.Lamports -= n
	return nil
}

// SetLamports overwrites the balance.
func (v *AccountView) SetLamports(n uint64) {
	v.account.Lamports = n
}

// Resize grows (zero-filled) or truncates the data.
func (v *AccountView) Resize(n int) error {
	if n < 0 || n > MaxAccountDataLen {
		return fmt.Errorf("%w: size %d", ErrInvalidRealloc, n)
	}
	cur := len(v.account.Data)
	switch {
	case n < cur:
		v.account.Data = v.account.Data[:n:n]
	case n > cur:
		grown := make([]byte, n)
		copy(grown, v.account.Data)
		v.account.Data = grown
	}
	return nil
}

// Assign changes the owning program.
func (v *AccountView) Assign(owner solana.PublicKey) {
	v.account.Owner = owner
}

// Close zeroes the balance and data and hands the slot back to the system
// program. The caller must have moved the lamports elsewhere first.
func (v *AccountView) Close() {
	v.account.Lamports = 0
	v.account.Data = nil
	v.account.Owner = solana.SystemProgramID
}
