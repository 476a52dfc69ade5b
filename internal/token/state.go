// Package token is an in-process token program with the SPL account
// layouts and instruction wire format, plus the associated token account
// program that derives and creates canonical holdings.
package token

import (
	"encoding/binary"
	"fmt"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

// Packed sizes.
const (
	MintLen    = 82
	AccountLen = 165
)

// AccountState is the lifecycle state of a token account.
type AccountState uint8

const (
	StateUninitialized AccountState = 0
	StateInitialized   AccountState = 1
	StateFrozen        AccountState = 2
)

// Mint describes a token.
type Mint struct {
	MintAuthority   *solana.PublicKey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
}

// Account is a token holding.
type Account struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	Delegate        *solana.PublicKey
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solana.PublicKey
}

// IsInitialized reports whether the account has been initialized.
func (a *Account) IsInitialized() bool { return a.State != StateUninitialized }

// IsFrozen reports whether the account is frozen.
func (a *Account) IsFrozen() bool { return a.State == StateFrozen }

// UnpackMint decodes an 82-byte mint.
func UnpackMint(data []byte) (*Mint, error) {
	if len(data) != MintLen {
		return nil, fmt.Errorf("%w: mint length %d", ledger.ErrInvalidAccountData, len(data))
	}
	m := &Mint{}
	var err error
	if m.MintAuthority, err = unpackKeyOption(data[0:36]); err != nil {
		return nil, err
	}
	m.Supply = binary.LittleEndian.Uint64(data[36:44])
	m.Decimals = data[44]
	switch data[45] {
	case 0:
	case 1:
		m.IsInitialized = true
	default:
		return nil, fmt.Errorf("%w: mint initialized flag %d", ledger.ErrInvalidAccountData, data[45])
	}
	if m.FreezeAuthority, err = unpackKeyOption(data[46:82]); err != nil {
		return nil, err
	}
	return m, nil
}

// Pack encodes m into dst, which must be MintLen bytes.
func (m *Mint) Pack(dst []byte) {
	_ = dst[MintLen-1]
	packKeyOption(dst[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(dst[36:44], m.Supply)
	dst[44] = m.Decimals
	dst[45] = boolByte(m.IsInitialized)
	packKeyOption(dst[46:82], m.FreezeAuthority)
}

// UnpackAccount decodes a 165-byte token account.
func UnpackAccount(data []byte) (*Account, error) {
	if len(data) != AccountLen {
		return nil, fmt.Errorf("%w: token account length %d", ledger.ErrInvalidAccountData, len(data))
	}
	a := &Account{}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	a.Amount = binary.LittleEndian.Uint64(data[64:72])

	var err error
	if a.Delegate, err = unpackKeyOption(data[72:108]); err != nil {
		return nil, err
	}
	if data[108] > uint8(StateFrozen) {
		return nil, fmt.Errorf("%w: account state %d", ledger.ErrInvalidAccountData, data[108])
	}
	a.State = AccountState(data[108])

	switch binary.LittleEndian.Uint32(data[109:113]) {
	case 0:
	case 1:
		v := binary.LittleEndian.Uint64(data[113:121])
		a.IsNative = &v
	default:
		return nil, fmt.Errorf("%w: is_native tag", ledger.ErrInvalidAccountData)
	}
	a.DelegatedAmount = binary.LittleEndian.Uint64(data[121:129])
	if a.CloseAuthority, err = unpackKeyOption(data[129:165]); err != nil {
		return nil, err
	}
	return a, nil
}

// Pack encodes a into dst, which must be AccountLen bytes.
func (a *Account) Pack(dst []byte) {
	_ = dst[AccountLen-1]
	copy(dst[0:32], a.Mint[:])
	copy(dst[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(dst[64:72], a.Amount)
	packKeyOption(dst[72:108], a.Delegate)
	dst[108] = uint8(a.State)
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(dst[109:113], 1)
		binary.LittleEndian.PutUint64(dst[113:121], *a.IsNative)
	} else {
		clear(dst[109:121])
	}
	binary.LittleEndian.PutUint64(dst[121:129], a.DelegatedAmount)
	packKeyOption(dst[129:165], a.CloseAuthority)
}

// COption<Pubkey>: u32 tag followed by 32 bytes.
func unpackKeyOption(b []byte) (*solana.PublicKey, error) {
	switch binary.LittleEndian.Uint32(b[0:4]) {
	case 0:
		return nil, nil
	case 1:
		var pk solana.PublicKey
		copy(pk[:], b[4:36])
		return &pk, nil
	default:
		return nil, fmt.Errorf("%w: option tag", ledger.ErrInvalidAccountData)
	}
}

func packKeyOption(dst []byte, pk *solana.PublicKey) {
	if pk == nil {
		clear(dst[0:36])
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	copy(dst[4:36], pk[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
