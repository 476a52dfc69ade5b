package program

import (
	"math/bits"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/token"
)

// Thin wrappers over the collaborator programs. Every caller has already
// validated the accounts it passes.

func createPDA(ctx *ledger.InvokeContext, payer, slot *ledger.AccountView, space int, auth Authority) error {
	lamports := ctx.Rent().MinimumBalance(space)
	ix := ledger.CreateAccountInstruction(payer.Key(), slot.Key(), lamports, uint64(space), ctx.ProgramID())
	return ctx.Invoke(ix, auth.Seeds())
}

func transferLamports(ctx *ledger.InvokeContext, from, to *ledger.AccountView, lamports uint64) error {
	return ctx.Invoke(ledger.TransferInstruction(from.Key(), to.Key(), lamports))
}

func createAssociated(ctx *ledger.InvokeContext, payer, ata, wallet, mint *ledger.AccountView) error {
	ix, err := token.CreateAssociated(payer.Key(), wallet.Key(), mint.Key())
	if err != nil {
		return err
	}
	if ix.Accounts[1].PublicKey != ata.Key() {
		return ErrAssociatedAddress
	}
	return ctx.Invoke(ix)
}

func transferTokens(ctx *ledger.InvokeContext, src, mint, dst, authority *ledger.AccountView, amount uint64, decimals uint8, signer ...Authority) error {
	ix := token.TransferChecked(src.Key(), mint.Key(), dst.Key(), authority.Key(), amount, decimals)
	return ctx.Invoke(ix, signerSeeds(signer)...)
}

func closeTokenAccount(ctx *ledger.InvokeContext, acct, dest, authority *ledger.AccountView, signer ...Authority) error {
	ix := token.CloseAccount(acct.Key(), dest.Key(), authority.Key())
	return ctx.Invoke(ix, signerSeeds(signer)...)
}

func signerSeeds(auths []Authority) []ledger.SignerSeeds {
	out := make([]ledger.SignerSeeds, len(auths))
	for i, a := range auths {
		out[i] = a.Seeds()
	}
	return out
}

// tokenBalance reads the live amount of an already validated token account.
func tokenBalance(v *ledger.AccountView) uint64 {
	a, err := token.UnpackAccount(v.Data())
	if err != nil {
		return 0
	}
	return a.Amount
}

// closeRecord invalidates a program-owned record and releases its slot:
// tag overwrite, balance sweep to dest, shrink to one byte, close.
func closeRecord(slot, dest *ledger.AccountView) error {
	if slot.Key() == dest.Key() {
		return ErrInvalidDestination
	}
	slot.Data()[0] = ClosedTag
	sum, carry := bits.Add64(dest.Lamports(), slot.Lamports(), 0)
	if carry != 0 {
		return ErrMathOverflow
	}
	dest.SetLamports(sum)
	slot.SetLamports(0)
	if err := slot.Resize(1); err != nil {
		return err
	}
	slot.Close()
	return nil
}
