package ledger

import "solana-escrow-lab/internal/solana"

// AccountMeta declares one account an instruction touches.
type AccountMeta struct {
	PublicKey  solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Signer is a writable signing account.
func Signer(pk solana.PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: true, IsWritable: true}
}

// Writable is a writable non-signing account.
func Writable(pk solana.PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk, IsWritable: true}
}

// ReadOnly is a read-only non-signing account.
func ReadOnly(pk solana.PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk}
}

// ReadOnlySigner is a signing account the callee may not write.
func ReadOnlySigner(pk solana.PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk, IsSigner: true}
}

// Instruction is a single program call.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is an ordered list of instructions executed atomically.
// Signers lists the keys whose signatures were verified by the submitter.
type Transaction struct {
	Signers      []solana.PublicKey
	Instructions []Instruction
}

// Receipt is the outcome of a processed transaction.
type Receipt struct {
	Slot      uint64
	Timestamp int64
	Logs      []string
	Err       error
}

// Program is an executable registered with the bank.
type Program interface {
	Process(ctx *InvokeContext, accounts []*AccountView, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx *InvokeContext, accounts []*AccountView, data []byte) error

// Process implements Program.
func (f ProgramFunc) Process(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
	return f(ctx, accounts, data)
}
