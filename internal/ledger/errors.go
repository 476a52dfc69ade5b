package ledger

import (
	"errors"
	"fmt"
)

// Runtime errors raised by the host or the builtin programs.
var (
	ErrProgramNotFound          = errors.New("program not found")
	ErrEmptyTransaction         = errors.New("transaction has no instructions")
	ErrMissingAccount           = errors.New("account not provided to the calling instruction")
	ErrPrivilegeEscalation      = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth                = errors.New("cross-program invocation call depth too deep")
	ErrReadonlyDataModified     = errors.New("instruction modified data of a read-only account")
	ErrReadonlyLamportChange    = errors.New("instruction changed the balance of a read-only account")
	ErrExternalDataModified     = errors.New("instruction modified data of an account it does not own")
	ErrExternalLamportSpend     = errors.New("instruction spent from the balance of an account it does not own")
	ErrModifiedProgramID        = errors.New("instruction illegally modified the program id of an account")
	ErrExecutableModified       = errors.New("instruction changed executable bit of an account")
	ErrUnbalancedInstruction    = errors.New("sum of account balances before and after instruction do not match")
	ErrInvalidRealloc           = errors.New("failed to reallocate account data")
	ErrArithmeticOverflow       = errors.New("arithmetic overflowed")
	ErrInsufficientLamports     = errors.New("insufficient lamports")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrMissingRequiredSignature = errors.New("missing required signature for instruction")
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys     = errors.New("insufficient account keys for instruction")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
	ErrInvalidAccountData       = errors.New("invalid account data for instruction")
	ErrIncorrectProgramID       = errors.New("incorrect program id for instruction")
)

// TransactionError reports which instruction aborted a transaction.
type TransactionError struct {
	Index int
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("error processing instruction %d: %v", e.Index, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
