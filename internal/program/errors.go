package program

import "fmt"

// ErrorCode is the closed set of reasons an instruction is rejected.
// Values are stable; clients match on the number.
type ErrorCode uint32

const (
	ErrInvalidDiscriminator ErrorCode = iota
	ErrNotSigner
	ErrNotWritable
	ErrNotExecutable
	ErrZeroAmount
	ErrDecimalsMismatch
	ErrMintDataLen
	ErrTokenAccountDataLen
	ErrTokenProgram
	ErrSystemProgram
	ErrTokenAccountOwner
	ErrTokenAccountMint
	ErrAssociatedAddress
	ErrForeignAccount
	ErrAlreadyInitialized
	ErrNotInitialized
	ErrInputDataLen
	ErrInvalidBool
	ErrInvalidStatus
	ErrFunctionSelector
	ErrConfigAddress
	ErrVaultAddress
	ErrEscrowAddress
	ErrConfigDataLen
	ErrEscrowDataLen
	ErrNotRentExempt
	ErrInsufficientFunds
	ErrEscrowMintX
	ErrEscrowMintY
	ErrEscrowID
	ErrEscrowAmount
	ErrOnlyMaker
	ErrAuthority
	ErrOnlyProgramOwner
	ErrMathOverflow
	ErrMathUnderflow
	ErrSameMints
	ErrPendingTake
	ErrNotEnoughAccounts
	ErrIncorrectProgramID
	ErrConfigInactive
	ErrMintNotAllowed
	ErrEscrowDecimals
	ErrEscrowMaker
	ErrEscrowNotSettled
	ErrInvalidDestination
	ErrVaultDataLen
	ErrEscrowConfig
	ErrProceedsPending
)

var codeText = map[ErrorCode]string{
	ErrInvalidDiscriminator: "invalid instruction discriminator",
	ErrNotSigner:            "account must sign",
	ErrNotWritable:          "account must be writable",
	ErrNotExecutable:        "account must be executable",
	ErrZeroAmount:           "amount must be nonzero",
	ErrDecimalsMismatch:     "decimals do not match the mint",
	ErrMintDataLen:          "mint data length",
	ErrTokenAccountDataLen:  "token account data length",
	ErrTokenProgram:         "not the token program",
	ErrSystemProgram:        "not the system program",
	ErrTokenAccountOwner:    "token account owner mismatch",
	ErrTokenAccountMint:     "token account mint mismatch",
	ErrAssociatedAddress:    "associated token account address mismatch",
	ErrForeignAccount:       "account not owned by this program",
	ErrAlreadyInitialized:   "account already initialized",
	ErrNotInitialized:       "account not initialized",
	ErrInputDataLen:         "instruction data length",
	ErrInvalidBool:          "boolean must be 0 or 1",
	ErrInvalidStatus:        "status out of range",
	ErrFunctionSelector:     "unknown update selector",
	ErrConfigAddress:        "config address mismatch",
	ErrVaultAddress:         "vault address mismatch",
	ErrEscrowAddress:        "escrow address mismatch",
	ErrConfigDataLen:        "config data length",
	ErrEscrowDataLen:        "escrow data length",
	ErrNotRentExempt:        "balance below rent-exempt minimum",
	ErrInsufficientFunds:    "insufficient token balance",
	ErrEscrowMintX:          "escrow mint x mismatch",
	ErrEscrowMintY:          "escrow mint y mismatch",
	ErrEscrowID:             "escrow id mismatch",
	ErrEscrowAmount:         "escrow amount mismatch",
	ErrOnlyMaker:            "only the maker may do this",
	ErrAuthority:            "signer is neither admin nor owner",
	ErrOnlyProgramOwner:     "only the program owner may do this",
	ErrMathOverflow:         "arithmetic overflow",
	ErrMathUnderflow:        "arithmetic underflow",
	ErrSameMints:            "escrow mints must differ",
	ErrPendingTake:          "vault y is funded; the maker must withdraw instead",
	ErrNotEnoughAccounts:    "wrong number of accounts",
	ErrIncorrectProgramID:   "not the associated token account program",
	ErrConfigInactive:       "config status does not allow new trades",
	ErrMintNotAllowed:       "mint not in the config allow-list",
	ErrEscrowDecimals:       "escrow decimals mismatch",
	ErrEscrowMaker:          "escrow maker mismatch",
	ErrEscrowNotSettled:     "escrow record still open",
	ErrInvalidDestination:   "destination must differ from the closed account",
	ErrVaultDataLen:         "vault data length",
	ErrEscrowConfig:         "escrow config mismatch",
	ErrProceedsPending:      "vault y still holds earlier proceeds; withdraw first",
}

func (e ErrorCode) Error() string {
	if text, ok := codeText[e]; ok {
		return fmt.Sprintf("program error %d: %s", uint32(e), text)
	}
	return fmt.Sprintf("program error %d", uint32(e))
}
