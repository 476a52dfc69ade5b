package node

import (
	"errors"
	"fmt"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/program"
)

// Node errors.
var (
	// ErrDuplicateTransaction is returned when a signature was already committed.
	ErrDuplicateTransaction = errors.New("transaction already processed")

	// ErrAirdropLimit is returned when a request exceeds the per-request cap.
	ErrAirdropLimit = errors.New("airdrop exceeds the per-request limit")

	// ErrAirdropRateLimited is returned when a recipient asks too often.
	ErrAirdropRateLimited = errors.New("too many airdrop requests for this recipient")

	// ErrInvalidAirdrop is returned for zero-lamport requests.
	ErrInvalidAirdrop = errors.New("airdrop amount must be positive")

	// ErrNotTokenAccount is returned when a token balance is asked of another account kind.
	ErrNotTokenAccount = errors.New("not a token account")

	// ErrUnknownSignature is returned when a pagination cursor is not in the history.
	ErrUnknownSignature = errors.New("unknown signature")
)

// TxFailedError carries the receipt of a transaction that aborted.
// Nothing it did was committed.
type TxFailedError struct {
	Signature string
	Receipt   *ledger.Receipt
	Err       error
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

func (e *TxFailedError) Unwrap() error {
	return e.Err
}

// Instruction is the index of the failing instruction, -1 when unknown.
func (e *TxFailedError) Instruction() int {
	var txErr *ledger.TransactionError
	if errors.As(e.Err, &txErr) {
		return txErr.Index
	}
	return -1
}

// ProgramError is the escrow program error code, nil when the failure came from elsewhere.
func (e *TxFailedError) ProgramError() *uint32 {
	var code program.ErrorCode
	if errors.As(e.Err, &code) {
		v := uint32(code)
		return &v
	}
	return nil
}
