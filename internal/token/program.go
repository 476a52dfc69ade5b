package token

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

// Program is the token program.
type Program struct{}

var _ ledger.Program = Program{}

// Process implements ledger.Program.
func (Program) Process(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	tag, payload := data[0], data[1:]
	switch tag {
	case TagInitializeMint2:
		return initializeMint(ctx, accounts, payload)
	case TagInitializeAccount3:
		return initializeAccount(ctx, accounts, payload)
	case TagTransfer:
		if len(payload) != 8 || len(accounts) < 3 {
			return ErrInvalidInstruction
		}
		return transfer(ctx, accounts[0], nil, accounts[1], accounts[2], binary.LittleEndian.Uint64(payload), nil)
	case TagTransferChecked:
		if len(payload) != 9 || len(accounts) < 4 {
			return ErrInvalidInstruction
		}
		decimals := payload[8]
		return transfer(ctx, accounts[0], accounts[1], accounts[2], accounts[3], binary.LittleEndian.Uint64(payload), &decimals)
	case TagMintToChecked:
		return mintTo(ctx, accounts, payload)
	case TagCloseAccount:
		return closeAccount(ctx, accounts)
	default:
		return fmt.Errorf("%w: tag %d", ErrInvalidInstruction, tag)
	}
}

func ownedAccount(ctx *ledger.InvokeContext, v *ledger.AccountView) (*Account, error) {
	if !v.IsOwnedBy(ctx.ProgramID()) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrIncorrectProgramID, v.Key())
	}
	a, err := UnpackAccount(v.Data())
	if err != nil {
		return nil, err
	}
	if !a.IsInitialized() {
		return nil, ErrUninitializedState
	}
	return a, nil
}

func ownedMint(ctx *ledger.InvokeContext, v *ledger.AccountView) (*Mint, error) {
	if !v.IsOwnedBy(ctx.ProgramID()) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrIncorrectProgramID, v.Key())
	}
	m, err := UnpackMint(v.Data())
	if err != nil {
		return nil, err
	}
	if !m.IsInitialized {
		return nil, ErrUninitializedState
	}
	return m, nil
}

func initializeMint(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, payload []byte) error {
	if len(accounts) < 1 {
		return ledger.ErrNotEnoughAccountKeys
	}
	if len(payload) != 1+32+1 && len(payload) != 1+32+1+32 {
		return ErrInvalidInstruction
	}
	mintView := accounts[0]
	if !mintView.IsOwnedBy(ctx.ProgramID()) {
		return ledger.ErrIncorrectProgramID
	}
	m, err := UnpackMint(mintView.Data())
	if err != nil {
		return err
	}
	if m.IsInitialized {
		return ErrAlreadyInUse
	}
	if !ctx.Rent().IsExempt(mintView.Lamports(), mintView.DataLen()) {
		return ErrNotRentExempt
	}

	authority, err := solana.PublicKeyFromBytes(payload[1:33])
	if err != nil {
		return ErrInvalidInstruction
	}
	m = &Mint{
		MintAuthority: &authority,
		Decimals:      payload[0],
		IsInitialized: true,
	}
	switch payload[33] {
	case 0:
	case 1:
		if len(payload) != 1+32+1+32 {
			return ErrInvalidInstruction
		}
		freeze, _ := solana.PublicKeyFromBytes(payload[34:66])
		m.FreezeAuthority = &freeze
	default:
		return ErrInvalidInstruction
	}
	m.Pack(mintView.Data())
	return nil
}

func initializeAccount(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, payload []byte) error {
	if len(accounts) < 2 {
		return ledger.ErrNotEnoughAccountKeys
	}
	if len(payload) != 32 {
		return ErrInvalidInstruction
	}
	acctView, mintView := accounts[0], accounts[1]
	if !acctView.IsOwnedBy(ctx.ProgramID()) {
		return ledger.ErrIncorrectProgramID
	}
	existing, err := UnpackAccount(acctView.Data())
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return ErrAlreadyInUse
	}
	if !ctx.Rent().IsExempt(acctView.Lamports(), acctView.DataLen()) {
		return ErrNotRentExempt
	}
	if _, err := ownedMint(ctx, mintView); err != nil {
		return ErrInvalidMint
	}

	owner, err := solana.PublicKeyFromBytes(payload)
	if err != nil {
		return ErrInvalidInstruction
	}
	a := &Account{
		Mint:  mintView.Key(),
		Owner: owner,
		State: StateInitialized,
	}
	a.Pack(acctView.Data())
	return nil
}

// transfer implements Transfer and TransferChecked; mintView and decimals
// are nil for the unchecked variant.
func transfer(ctx *ledger.InvokeContext, srcView, mintView, dstView, authView *ledger.AccountView, amount uint64, decimals *uint8) error {
	src, err := ownedAccount(ctx, srcView)
	if err != nil {
		return err
	}
	dst, err := ownedAccount(ctx, dstView)
	if err != nil {
		return err
	}
	if src.IsFrozen() || dst.IsFrozen() {
		return ErrAccountFrozen
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if mintView != nil {
		if mintView.Key() != src.Mint {
			return ErrMintMismatch
		}
		m, err := ownedMint(ctx, mintView)
		if err != nil {
			return err
		}
		if decimals != nil && *decimals != m.Decimals {
			return ErrMintDecimalsMismatch
		}
	}

	switch {
	case src.Delegate != nil && *src.Delegate == authView.Key() && src.Owner != authView.Key():
		if !authView.IsSigner() {
			return ledger.ErrMissingRequiredSignature
		}
		if src.DelegatedAmount < amount {
			return ErrInsufficientFunds
		}
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.Delegate = nil
		}
	default:
		if src.Owner != authView.Key() {
			return ErrOwnerMismatch
		}
		if !authView.IsSigner() {
			return ledger.ErrMissingRequiredSignature
		}
	}

	if srcView.Key() == dstView.Key() {
		return nil
	}
	src.Amount -= amount
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	dst.Amount = sum
	src.Pack(srcView.Data())
	dst.Pack(dstView.Data())
	return nil
}

func mintTo(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, payload []byte) error {
	if len(accounts) < 3 {
		return ledger.ErrNotEnoughAccountKeys
	}
	if len(payload) != 9 {
		return ErrInvalidInstruction
	}
	mintView, dstView, authView := accounts[0], accounts[1], accounts[2]
	amount := binary.LittleEndian.Uint64(payload[0:8])

	m, err := ownedMint(ctx, mintView)
	if err != nil {
		return err
	}
	dst, err := ownedAccount(ctx, dstView)
	if err != nil {
		return err
	}
	if dst.IsFrozen() {
		return ErrAccountFrozen
	}
	if dst.Mint != mintView.Key() {
		return ErrMintMismatch
	}
	if payload[8] != m.Decimals {
		return ErrMintDecimalsMismatch
	}
	if m.MintAuthority == nil {
		return ErrFixedSupply
	}
	if *m.MintAuthority != authView.Key() {
		return ErrOwnerMismatch
	}
	if !authView.IsSigner() {
		return ledger.ErrMissingRequiredSignature
	}

	supply, carry := bits.Add64(m.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	m.Supply = supply
	dst.Amount = balance
	m.Pack(mintView.Data())
	dst.Pack(dstView.Data())
	return nil
}

func closeAccount(ctx *ledger.InvokeContext, accounts []*ledger.AccountView) error {
	if len(accounts) < 3 {
		return ledger.ErrNotEnoughAccountKeys
	}
	acctView, destView, authView := accounts[0], accounts[1], accounts[2]
	if acctView.Key() == destView.Key() {
		return ledger.ErrInvalidAccountData
	}
	a, err := ownedAccount(ctx, acctView)
	if err != nil {
		return err
	}
	if a.IsNative == nil && a.Amount != 0 {
		return ErrNonNativeHasBalance
	}
	authority := a.Owner
	if a.CloseAuthority != nil {
		authority = *a.CloseAuthority
	}
	if authority != authView.Key() {
		return ErrOwnerMismatch
	}
	if !authView.IsSigner() {
		return ledger.ErrMissingRequiredSignature
	}

	if err := destView.AddLamports(acctView.Lamports()); err != nil {
		return ErrOverflow
	}
	acctView.Close()
	return nil
}
