package program

import (
	"solana-escrow-lab/internal/ledger"
)

// Processor dispatches instructions to their handlers.
type Processor struct{}

var _ ledger.Program = Processor{}

// Process implements ledger.Program.
func (Processor) Process(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, data []byte) error {
	ix, err := Decode(data)
	if err != nil {
		return err
	}
	ctx.Log("Instruction: %s", Name(ix))

	switch v := ix.(type) {
	case InitConfig:
		return initConfig(ctx, accounts, v)
	case UpdateConfig:
		return updateConfig(ctx, accounts, v)
	case CloseConfig:
		return closeConfig(ctx, accounts)
	case ResizeConfig:
		return resizeConfig(ctx, accounts, v)
	case EscrowMake:
		return escrowMake(ctx, accounts, v)
	case EscrowTake:
		return escrowTake(ctx, accounts, v)
	case EscrowWithdraw:
		return escrowWithdraw(ctx, accounts, v)
	case EscrowCancel:
		return escrowCancel(ctx, accounts)
	default:
		return ErrInvalidDiscriminator
	}
}

// Name is the log name of an instruction.
func Name(ix Instruction) string {
	switch ix.(type) {
	case InitConfig:
		return "InitConfig"
	case UpdateConfig:
		return "UpdateConfig"
	case CloseConfig:
		return "CloseConfig"
	case ResizeConfig:
		return "ResizeConfig"
	case EscrowMake:
		return "EscrowMake"
	case EscrowTake:
		return "EscrowTake"
	case EscrowWithdraw:
		return "EscrowWithdraw"
	case EscrowCancel:
		return "EscrowCancel"
	default:
		return "Unknown"
	}
}

// Install registers the program at ProgramID.
func Install(bank *ledger.Bank) {
	bank.RegisterProgram(ProgramID, Processor{})
}
