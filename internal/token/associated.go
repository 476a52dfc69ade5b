package token

import (
	"fmt"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

// Associated token account instruction tags.
const (
	TagAssociatedCreate           uint8 = 0
	TagAssociatedCreateIdempotent uint8 = 1
)

// FindAssociatedAddress derives the canonical token account of wallet for mint.
func FindAssociatedAddress(wallet, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{wallet[:], solana.TokenProgramID[:], mint[:]},
		solana.AssociatedTokenProgramID,
	)
}

// CreateAssociated creates the canonical account and fails if it exists.
func CreateAssociated(payer, wallet, mint solana.PublicKey) (ledger.Instruction, error) {
	return associatedInstruction(TagAssociatedCreate, payer, wallet, mint)
}

// CreateAssociatedIdempotent creates the canonical account unless a valid one exists.
func CreateAssociatedIdempotent(payer, wallet, mint solana.PublicKey) (ledger.Instruction, error) {
	return associatedInstruction(TagAssociatedCreateIdempotent, payer, wallet, mint)
}

func associatedInstruction(tag uint8, payer, wallet, mint solana.PublicKey) (ledger.Instruction, error) {
	ata, _, err := FindAssociatedAddress(wallet, mint)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: solana.AssociatedTokenProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.Signer(payer),
			ledger.Writable(ata),
			ledger.ReadOnly(wallet),
			ledger.ReadOnly(mint),
			ledger.ReadOnly(solana.SystemProgramID),
			ledger.ReadOnly(solana.TokenProgramID),
		},
		Data: []byte{tag},
	}, nil
}

// AssociatedProgram creates associated token accounts.
type AssociatedProgram struct{}

var _ ledger.Program = AssociatedProgram{}

// Process implements ledger.Program.
func (AssociatedProgram) Process(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, data []byte) error {
	idempotent := false
	switch {
	case len(data) == 0 || data[0] == TagAssociatedCreate:
	case data[0] == TagAssociatedCreateIdempotent:
		idempotent = true
	default:
		return fmt.Errorf("%w: associated tag %d", ledger.ErrInvalidInstructionData, data[0])
	}
	if len(accounts) < 6 {
		return ledger.ErrNotEnoughAccountKeys
	}
	payer, ata, wallet, mint, tokenProgram := accounts[0], accounts[1], accounts[2], accounts[3], accounts[5]
	if tokenProgram.Key() != solana.TokenProgramID {
		return ledger.ErrIncorrectProgramID
	}

	expected, bump, err := FindAssociatedAddress(wallet.Key(), mint.Key())
	if err != nil {
		return err
	}
	if expected != ata.Key() {
		ctx.Log("Error: Associated address does not match seed derivation")
		return solana.ErrInvalidSeeds
	}

	if idempotent && ata.IsOwnedBy(solana.TokenProgramID) {
		existing, err := UnpackAccount(ata.Data())
		if err != nil {
			return err
		}
		if existing.Owner != wallet.Key() {
			return ledger.ErrInvalidAccountOwner
		}
		if existing.Mint != mint.Key() {
			return ErrMintMismatch
		}
		return nil
	}
	if !ata.IsOwnedBy(solana.SystemProgramID) {
		return ledger.ErrAccountAlreadyInUse
	}
	if !mint.IsOwnedBy(solana.TokenProgramID) {
		return ledger.ErrIncorrectProgramID
	}

	ctx.Log("Create")
	lamports := ctx.Rent().MinimumBalance(AccountLen)
	create := ledger.CreateAccountInstruction(payer.Key(), ata.Key(), lamports, AccountLen, solana.TokenProgramID)
	seeds := ledger.SignerSeeds{wallet.Key().Bytes(), solana.TokenProgramID.Bytes(), mint.Key().Bytes(), {bump}}
	if err := ctx.Invoke(create, seeds); err != nil {
		return err
	}

	ctx.Log("Initialize the associated token account")
	return ctx.Invoke(InitializeAccount3(ata.Key(), mint.Key(), wallet.Key()))
}

// Install registers the token and associated token account programs.
func Install(bank *ledger.Bank) {
	bank.RegisterProgram(solana.TokenProgramID, Program{})
	bank.RegisterProgram(solana.AssociatedTokenProgramID, AssociatedProgram{})
}
