package program

import (
	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

// Guards are total: each returns nil or exactly one ErrorCode and never
// mutates an account.

func checkAccounts(accounts []*ledger.AccountView, n int) error {
	if len(accounts) != n {
		return ErrNotEnoughAccounts
	}
	return nil
}

func checkSigner(v *ledger.AccountView) error {
	if !v.IsSigner() {
		return ErrNotSigner
	}
	return nil
}

func checkWritable(views ...*ledger.AccountView) error {
	for _, v := range views {
		if !v.IsWritable() {
			return ErrNotWritable
		}
	}
	return nil
}

func checkOwnedBy(v *ledger.AccountView, program solana.PublicKey) error {
	if !v.IsOwnedBy(program) {
		return ErrForeignAccount
	}
	return nil
}

func checkAddress(v *ledger.AccountView, expected solana.PublicKey, code ErrorCode) error {
	if v.Key() != expected {
		return code
	}
	return nil
}

func checkRentExempt(rent ledger.Rent, v *ledger.AccountView) error {
	if !rent.IsExempt(v.Lamports(), v.DataLen()) {
		return ErrNotRentExempt
	}
	return nil
}

func checkNonZero(amounts ...uint64) error {
	for _, a := range amounts {
		if a == 0 {
			return ErrZeroAmount
		}
	}
	return nil
}

// checkPrograms verifies the collaborator program accounts in the order
// token, system, associated token.
func checkPrograms(tokenProgram, systemProgram, ataProgram *ledger.AccountView) error {
	if tokenProgram != nil {
		if tokenProgram.Key() != solana.TokenProgramID {
			return ErrTokenProgram
		}
		if !tokenProgram.Executable() {
			return ErrNotExecutable
		}
	}
	if systemProgram != nil && systemProgram.Key() != solana.SystemProgramID {
		return ErrSystemProgram
	}
	if ataProgram != nil {
		if ataProgram.Key() != solana.AssociatedTokenProgramID {
			return ErrIncorrectProgramID
		}
		if !ataProgram.Executable() {
			return ErrNotExecutable
		}
	}
	return nil
}

// checkMint validates a mint's shape and, when decimals is set, its decimals.
func checkMint(rent ledger.Rent, v *ledger.AccountView, decimals *uint8) (*token.Mint, error) {
	if v.DataLen() != token.MintLen {
		return nil, ErrMintDataLen
	}
	if !v.IsOwnedBy(solana.TokenProgramID) {
		return nil, ErrTokenProgram
	}
	if err := checkRentExempt(rent, v); err != nil {
		return nil, err
	}
	m, err := token.UnpackMint(v.Data())
	if err != nil || !m.IsInitialized {
		return nil, ErrNotInitialized
	}
	if decimals != nil && *decimals != m.Decimals {
		return nil, ErrDecimalsMismatch
	}
	return m, nil
}

// checkTokenAccount validates a token account's shape, holder and mint.
func checkTokenAccount(rent ledger.Rent, v *ledger.AccountView, owner, mint solana.PublicKey) (*token.Account, error) {
	if v.DataLen() != token.AccountLen {
		return nil, ErrTokenAccountDataLen
	}
	if !v.IsOwnedBy(solana.TokenProgramID) {
		return nil, ErrTokenProgram
	}
	if err := checkRentExempt(rent, v); err != nil {
		return nil, err
	}
	a, err := token.UnpackAccount(v.Data())
	if err != nil || !a.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if a.Owner != owner {
		return nil, ErrTokenAccountOwner
	}
	if a.Mint != mint {
		return nil, ErrTokenAccountMint
	}
	return a, nil
}

// checkAssociatedAddress verifies v sits at the canonical address for (wallet, mint).
func checkAssociatedAddress(v *ledger.AccountView, wallet, mint solana.PublicKey) error {
	expected, _, err := token.FindAssociatedAddress(wallet, mint)
	if err != nil || v.Key() != expected {
		return ErrAssociatedAddress
	}
	return nil
}

// checkAssociated validates an existing associated token account.
func checkAssociated(rent ledger.Rent, v *ledger.AccountView, wallet, mint solana.PublicKey) (*token.Account, error) {
	if err := checkAssociatedAddress(v, wallet, mint); err != nil {
		return nil, err
	}
	return checkTokenAccount(rent, v, wallet, mint)
}

func checkBalance(a *token.Account, amount uint64) error {
	if a.Amount < amount {
		return ErrInsufficientFunds
	}
	return nil
}

// loadConfig validates an existing config record presented to a handler.
func loadConfig(programID solana.PublicKey, v *ledger.AccountView) (*Config, error) {
	if err := checkOwnedBy(v, programID); err != nil {
		return nil, err
	}
	if v.IsEmpty() {
		return nil, ErrNotInitialized
	}
	return DecodeConfig(v.Data())
}

// loadEscrow validates an open escrow record.
func loadEscrow(programID solana.PublicKey, v *ledger.AccountView) (*Escrow, error) {
	if v.IsEmpty() {
		return nil, ErrNotInitialized
	}
	if err := checkOwnedBy(v, programID); err != nil {
		return nil, err
	}
	return DecodeEscrow(v.Data())
}

// checkTradeable applies the config trading policy to a mint pair.
func checkTradeable(cfg *Config, mintX, mintY solana.PublicKey) error {
	if !cfg.Status.AllowsTrading() {
		return ErrConfigInactive
	}
	if cfg.IsAuthorized && (!cfg.Allows(mintX) || !cfg.Allows(mintY)) {
		return ErrMintNotAllowed
	}
	return nil
}

// ensure is the create-or-validate step: an empty slot is initialized
// first, then the slot is validated either way.
func ensure[T any](slot *ledger.AccountView, validateIfPresent func() (T, error), initializeIfAbsent func() error) (T, error) {
	if slot.IsEmpty() && slot.IsOwnedBy(solana.SystemProgramID) {
		if err := initializeIfAbsent(); err != nil {
			var zero T
			return zero, err
		}
	}
	return validateIfPresent()
}
