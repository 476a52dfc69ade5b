package ledger

import (
	"encoding/binary"
	"fmt"

	"solana-escrow-lab/internal/solana"
)

// System program instruction tags (u32 little-endian on the wire).
const (
	SystemCreateAccount uint32 = 0
	SystemAssign        uint32 = 1
	SystemTransfer      uint32 = 2
)

// SystemProgram is the builtin that creates, funds and assigns accounts.
type SystemProgram struct{}

// Process implements Program.
func (SystemProgram) Process(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}
	switch tag := binary.LittleEndian.Uint32(data); tag {
	case SystemCreateAccount:
		return createAccount(ctx, accounts, data[4:])
	case SystemAssign:
		return assign(accounts, data[4:])
	case SystemTransfer:
		return transfer(accounts, data[4:])
	default:
		return fmt.Errorf("%w: system tag %d", ErrInvalidInstructionData, tag)
	}
}

func createAccount(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
	if len(accounts) < 2 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) != 8+8+32 {
		return ErrInvalidInstructionData
	}
	from, to := accounts[0], accounts[1]
	lamports := binary.LittleEndian.Uint64(data[0:8])
	space := binary.LittleEndian.Uint64(data[8:16])
	owner, err := solana.PublicKeyFromBytes(data[16:48])
	if err != nil {
		return ErrInvalidInstructionData
	}

	if !from.IsSigner() || !to.IsSigner() {
		return ErrMissingRequiredSignature
	}
	if to.Lamports() > 0 || !to.IsEmpty() || !to.IsOwnedBy(solana.SystemProgramID) {
		ctx.Log("Create Account: account %s already in use", to.Key())
		return ErrAccountAlreadyInUse
	}
	if space > MaxAccountDataLen {
		return fmt.Errorf("%w: space %d", ErrInvalidRealloc, space)
	}
	if !from.IsEmpty() {
		return fmt.Errorf("%w: funding account carries data", ErrInvalidAccountOwner)
	}
	if err := from.SubLamports(lamports); err != nil {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports(), lamports)
		return err
	}
	if err := to.AddLamports(lamports); err != nil {
		return err
	}
	if err := to.Resize(int(space)); err != nil {
		return err
	}
	to.Assign(owner)
	return nil
}

func assign(accounts []*AccountView, data []byte) error {
	if len(accounts) < 1 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) != 32 {
		return ErrInvalidInstructionData
	}
	owner, err := solana.PublicKeyFromBytes(data)
	if err != nil {
		return ErrInvalidInstructionData
	}
	acct := accounts[0]
	if acct.Owner() == owner {
		return nil
	}
	if !acct.IsSigner() {
		return ErrMissingRequiredSignature
	}
	acct.Assign(owner)
	return nil
}

func transfer(accounts []*AccountView, data []byte) error {
	if len(accounts) < 2 {
		return ErrNotEnoughAccountKeys
	}
	if len(data) != 8 {
		return ErrInvalidInstructionData
	}
	from, to := accounts[0], accounts[1]
	lamports := binary.LittleEndian.Uint64(data)
	if !from.IsSigner() {
		return ErrMissingRequiredSignature
	}
	if !from.IsEmpty() {
		return fmt.Errorf("%w: transfer source carries data", ErrInvalidAccountOwner)
	}
	if err := from.SubLamports(lamports); err != nil {
		return err
	}
	return to.AddLamports(lamports)
}

// CreateAccountInstruction funds a fresh account and assigns it to owner.
func CreateAccountInstruction(from, to solana.PublicKey, lamports, space uint64, owner solana.PublicKey) Instruction {
	data := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(data[0:4], SystemCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:], owner[:])
	return Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts:  []AccountMeta{Signer(from), Signer(to)},
		Data:      data,
	}
}

// AssignInstruction reassigns a system account to owner.
func AssignInstruction(account, owner solana.PublicKey) Instruction {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:4], SystemAssign)
	copy(data[4:], owner[:])
	return Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts:  []AccountMeta{Signer(account)},
		Data:      data,
	}
}

// TransferInstruction moves lamports between system accounts.
func TransferInstruction(from, to solana.PublicKey, lamports uint64) Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], SystemTransfer)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts:  []AccountMeta{Signer(from), Writable(to)},
		Data:      data,
	}
}
